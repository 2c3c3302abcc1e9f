package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/models"
)

const sample = `Retrieval augmented generation combines search with language models. The retriever finds passages! Does the generator use them? It should.

Chunking matters because embeddings work best on focused passages. Windows that are too large blur the topic, windows that are too small lose context.

Overlap keeps sentences that straddle a boundary retrievable from both sides. The exact amount is a tuning decision. Here we just need enough prose to produce several windows with a mix of paragraph breaks, sentence ends and plain spaces to exercise every branch of the boundary search.`

func TestSplitCoverage(t *testing.T) {
	s := New()
	for _, tc := range []struct{ size, overlap int }{{100, 0}, {100, 30}, {150, 60}, {400, 100}, {2000, 500}} {
		chunks, err := s.Split([]models.TextUnit{{Content: sample, PageNumber: 1}}, "doc.pdf", tc.size, tc.overlap)
		require.NoError(t, err)
		assert.Equal(t, sample, Join(chunks, tc.overlap), "size=%d overlap=%d", tc.size, tc.overlap)
	}
}

func TestSplitCoverageAcrossUnits(t *testing.T) {
	units := []models.TextUnit{
		{Content: sample, PageNumber: 1},
		{Content: "   ", PageNumber: 2},
		{Content: strings.Repeat("page three words ", 30), PageNumber: 3},
	}
	chunks, err := New().Split(units, "doc.pdf", 120, 40)
	require.NoError(t, err)

	assert.Equal(t, sample+"\n\n"+units[2].Content, Join(chunks, 40))
	assert.Equal(t, 1, chunks[0].PageNumber)
	assert.Equal(t, 3, chunks[len(chunks)-1].PageNumber)
	for i, c := range chunks {
		assert.Equal(t, i+1, c.ChunkID)
		assert.Equal(t, "doc.pdf", c.Source)
		assert.NotEqual(t, 2, c.PageNumber)
	}
}

func TestSplitOverlapAndSize(t *testing.T) {
	const size, overlap = 120, 35
	chunks, err := New().Split([]models.TextUnit{{Content: sample, PageNumber: 1}}, "doc.pdf", size, overlap)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 2)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), size)
		if i == 0 {
			continue
		}
		prev := []rune(chunks[i-1].Content)
		cur := []rune(c.Content)
		assert.Equal(t, string(prev[len(prev)-overlap:]), string(cur[:overlap]), "chunk %d", i)
	}
}

func TestSplitPrefersBoundaries(t *testing.T) {
	s := New()

	para := strings.Repeat("word ", 16) + "\n\n" + strings.Repeat("next ", 40)
	chunks, err := s.Split([]models.TextUnit{{Content: para}}, "", 100, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(chunks[0].Content, "\n\n"), "%q", chunks[0].Content)

	sentence := strings.Repeat("a", 50) + ". " + strings.Repeat("b ", 60)
	chunks, err = s.Split([]models.TextUnit{{Content: sentence}}, "", 100, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(chunks[0].Content, ". "), "%q", chunks[0].Content)

	words := strings.Repeat("abcdefghi ", 30)
	chunks, err = s.Split([]models.TextUnit{{Content: words}}, "", 100, 10)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(chunks[0].Content, " "), "%q", chunks[0].Content)
}

func TestSplitHardCut(t *testing.T) {
	chunks, err := New().Split([]models.TextUnit{{Content: strings.Repeat("x", 250)}}, "", 100, 20)
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, 100, len(chunks[0].Content))
	assert.Equal(t, 100, len(chunks[1].Content))
	assert.Equal(t, 90, len(chunks[2].Content))
}

func TestSplitMaxOverlapTerminates(t *testing.T) {
	s := New()
	prev := 0
	for _, n := range []int{150, 200, 300, 500} {
		text := strings.Repeat("lorem ipsum dolor ", n/18+1)[:n]
		chunks, err := s.Split([]models.TextUnit{{Content: text}}, "", 100, 99)
		require.NoError(t, err)
		assert.Equal(t, n-99, len(chunks))
		assert.Greater(t, len(chunks), prev)
		prev = len(chunks)
	}
}

func TestSplitCountsRunes(t *testing.T) {
	text := strings.Repeat("é", 350)
	chunks, err := New().Split([]models.TextUnit{{Content: text}}, "", 100, 10)
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), 100)
		assert.True(t, utf8.ValidString(c.Content))
	}
	assert.Equal(t, text, Join(chunks, 10))
}

func TestSplitInvalidParameters(t *testing.T) {
	units := []models.TextUnit{{Content: sample}}
	for _, tc := range []struct{ size, overlap int }{{99, 10}, {2001, 10}, {100, -1}, {100, 100}, {100, 150}} {
		_, err := New().Split(units, "", tc.size, tc.overlap)
		assert.ErrorIs(t, err, models.ErrInvalidParameter, "size=%d overlap=%d", tc.size, tc.overlap)
	}

	_, err := New(WithSizeBounds(10, 50)).Split(units, "", 20, 5)
	assert.NoError(t, err)
}

func TestSplitEmptyDocument(t *testing.T) {
	_, err := New().Split(nil, "", 1000, 400)
	assert.ErrorIs(t, err, models.ErrEmptyDocument)

	_, err = New().Split([]models.TextUnit{{Content: " \n\t "}, {Content: ""}}, "", 1000, 400)
	assert.ErrorIs(t, err, models.ErrEmptyDocument)
}
