package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"
)

// Options controls the Markdown dialect used for rendering.
type Options struct {
	// RewriteMarkdownLinks turns relative links to .md files into links to
	// the generated .html pages.
	RewriteMarkdownLinks bool
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{RewriteMarkdownLinks: true}
}

// Renderer converts Markdown bodies (front matter already removed) into HTML
// fragments. It is immutable after construction and safe for concurrent use.
type Renderer struct {
	md goldmark.Markdown
}

// NewRenderer builds a renderer with the extended dialect: GFM tables,
// strikethrough, task lists and autolinks, footnotes, definition lists,
// typographic punctuation and heading attributes. Raw HTML is passed through.
func NewRenderer(opts Options) *Renderer {
	parserOpts := []parser.Option{parser.WithAttribute()}
	if opts.RewriteMarkdownLinks {
		parserOpts = append(parserOpts, parser.WithASTTransformers(
			util.Prioritized(linkRewriter{}, 100),
		))
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
			extension.Typographer,
		),
		goldmark.WithParserOptions(parserOpts...),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)
	return &Renderer{md: md}
}

// Render returns the HTML fragment for body.
func (r *Renderer) Render(body []byte) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}
