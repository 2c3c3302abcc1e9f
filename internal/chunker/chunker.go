// Package chunker splits extracted document text into overlapping windows.
//
// Sizes and overlaps are measured in runes. A window prefers to end after a
// paragraph break, then after a sentence, then after whitespace, and only
// cuts mid-word when none of those fall inside the allowed range. The next
// window always starts exactly overlap runes before the previous one ended,
// so chunks are never trimmed and the original text can be rebuilt from them.
package chunker

import (
	"fmt"
	"strings"
	"unicode"

	"ragchat/internal/models"
)

const (
	DefaultMinSize = 100
	DefaultMaxSize = 2000
)

type Splitter struct {
	minSize int
	maxSize int
}

type Option func(*Splitter)

// WithSizeBounds sets the accepted chunk size range.
func WithSizeBounds(minSize, maxSize int) Option {
	return func(s *Splitter) {
		s.minSize = minSize
		s.maxSize = maxSize
	}
}

func New(opts ...Option) *Splitter {
	s := &Splitter{minSize: DefaultMinSize, maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Split turns ordered text units into ordered chunks. ChunkIDs are 1-based across the whole document.
// Windows never span two units, so every chunk keeps the page number of the unit it came from.
func (s *Splitter) Split(units []models.TextUnit, source string, size, overlap int) ([]models.Chunk, error) {
	if size < s.minSize || size > s.maxSize {
		return nil, fmt.Errorf("%w: chunk_size %d outside [%d,%d]", models.ErrInvalidParameter, size, s.minSize, s.maxSize)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk_overlap %d must be in [0,%d)", models.ErrInvalidParameter, overlap, size)
	}

	var chunks []models.Chunk
	for _, unit := range units {
		if strings.TrimSpace(unit.Content) == "" {
			continue
		}
		for _, window := range splitText([]rune(unit.Content), size, overlap) {
			chunks = append(chunks, models.Chunk{
				Content:    window,
				PageNumber: unit.PageNumber,
				Source:     source,
				ChunkID:    len(chunks) + 1,
			})
		}
	}
	if len(chunks) == 0 {
		return nil, models.ErrEmptyDocument
	}
	return chunks, nil
}

func splitText(text []rune, size, overlap int) []string {
	var out []string
	start := 0
	for {
		if len(text)-start <= size {
			return append(out, string(text[start:]))
		}
		// end must leave the next window starting after this one
		end := breakPoint(text, start+overlap+1, start+size)
		out = append(out, string(text[start:end]))
		start = end - overlap
	}
}

// breakPoint picks the end (exclusive) of a window within [lo, hi].
func breakPoint(text []rune, lo, hi int) int {
	for _, accept := range []func([]rune, int) bool{afterParagraph, afterSentence, afterSpace} {
		for end := hi; end >= lo; end-- {
			if accept(text, end) {
				return end
			}
		}
	}
	return hi
}

func afterParagraph(text []rune, end int) bool {
	return end >= 2 && text[end-1] == '\n' && text[end-2] == '\n'
}

func afterSentence(text []rune, end int) bool {
	if end < 2 || !unicode.IsSpace(text[end-1]) {
		return false
	}
	switch text[end-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func afterSpace(text []rune, end int) bool {
	return end >= 1 && unicode.IsSpace(text[end-1])
}

// Join rebuilds the text of chunks produced by Split with the same overlap.
// A change of page number marks a new unit; units are separated by a blank line.
func Join(chunks []models.Chunk, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		r := []rune(c.Content)
		switch {
		case i == 0:
		case c.PageNumber != chunks[i-1].PageNumber:
			b.WriteString("\n\n")
		default:
			r = r[min(overlap, len(r)):]
		}
		b.WriteString(string(r))
	}
	return b.String()
}
