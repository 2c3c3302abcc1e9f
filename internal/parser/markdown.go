package parser

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"

	"ragchat/internal/models"
)

// parseMarkdown strips markdown syntax and returns one unit per section.
// A section starts at every level 1 or 2 heading; sections are numbered from 1.
func parseMarkdown(filePath string) ([]models.TextUnit, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	doc := goldmark.New(goldmark.WithExtensions(extension.GFM)).Parser().Parse(text.NewReader(src))

	var (
		units   []models.TextUnit
		section strings.Builder
	)
	flush := func() {
		if s := strings.TrimSpace(section.String()); s != "" {
			units = append(units, models.TextUnit{Content: s, PageNumber: len(units) + 1})
		}
		section.Reset()
	}

	for block := doc.FirstChild(); block != nil; block = block.NextSibling() {
		if h, ok := block.(*ast.Heading); ok && h.Level <= 2 {
			flush()
		}
		if err := writePlain(&section, block, src); err != nil {
			return nil, err
		}
		section.WriteString("\n\n")
	}
	flush()
	return units, nil
}

func writePlain(b *strings.Builder, block ast.Node, src []byte) error {
	return ast.Walk(block, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(src))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte('\n')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					b.Write(seg.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.Paragraph, *ast.ListItem, *ast.Heading:
			if !entering && n != block {
				b.WriteByte('\n')
			}
		case *east.TableCell:
			if !entering {
				b.WriteByte('\t')
			}
		case *east.TableHeader, *east.TableRow:
			if !entering {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
}
