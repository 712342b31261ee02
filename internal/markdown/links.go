package markdown

import (
	"net/url"
	"path"
	"strings"

	gmast "github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// linkRewriter points relative links at sibling Markdown sources to the HTML
// pages the build generates for them.
type linkRewriter struct{}

func (linkRewriter) Transform(doc *gmast.Document, _ text.Reader, _ parser.Context) {
	_ = gmast.Walk(doc, func(n gmast.Node, entering bool) (gmast.WalkStatus, error) {
		if !entering {
			return gmast.WalkContinue, nil
		}
		if link, ok := n.(*gmast.Link); ok {
			if dest, changed := RewriteMarkdownLink(string(link.Destination)); changed {
				link.Destination = []byte(dest)
			}
		}
		return gmast.WalkContinue, nil
	})
}

// RewriteMarkdownLink maps "notes/b.md#part" to "notes/b.html#part". External
// URLs, scheme-relative URLs and non-Markdown targets are returned unchanged.
func RewriteMarkdownLink(dest string) (string, bool) {
	if dest == "" || strings.HasPrefix(dest, "//") {
		return dest, false
	}
	if u, err := url.Parse(dest); err != nil || u.Scheme != "" {
		return dest, false
	}

	target, suffix := dest, ""
	if i := strings.IndexAny(dest, "?#"); i >= 0 {
		target, suffix = dest[:i], dest[i:]
	}
	if !strings.EqualFold(path.Ext(target), ".md") {
		return dest, false
	}
	return target[:len(target)-len(".md")] + ".html" + suffix, true
}
