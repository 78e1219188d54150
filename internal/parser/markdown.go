package parser

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// md is stateless and shared between callers.
var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

func parseMarkdown(src []byte) ast.Node {
	return md.Parser().Parse(text.NewReader(src))
}

// firstHeading returns the plain text of the first level-1 heading, ATX or
// setext, or "" when there is none.
func firstHeading(doc ast.Node, src []byte) string {
	var title string
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 {
			var b strings.Builder
			writeInline(&b, h, src)
			title = strings.Join(strings.Fields(b.String()), " ")
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})
	return title
}

// countWords counts whitespace-delimited tokens of the plain-text rendering.
func countWords(doc ast.Node, src []byte) int {
	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				b.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := n.(type) {
		case *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			writeLines(&b, v, src)
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			writeText(&b, v, src)
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return len(strings.Fields(b.String()))
}

func writeInline(b *strings.Builder, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch v := c.(type) {
		case *ast.Text:
			writeText(b, v, src)
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
		case *ast.RawHTML:
		default:
			writeInline(b, c, src)
		}
	}
}

func writeText(b *strings.Builder, t *ast.Text, src []byte) {
	b.Write(t.Segment.Value(src))
	if t.SoftLineBreak() || t.HardLineBreak() {
		b.WriteByte(' ')
	}
}

func writeLines(b *strings.Builder, n ast.Node, src []byte) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(src))
	}
	b.WriteByte('\n')
}
