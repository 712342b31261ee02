// Package linkverify checks generated pages for internal links that point at
// files the build did not produce.
package linkverify

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/gongjeon/internal/logfields"
)

// BrokenLink is an internal link whose target does not exist in the output tree.
type BrokenLink struct {
	Page   string `json:"page"`   // page URL relative to the site root
	URL    string `json:"url"`    // link as written in the page
	Target string `json:"target"` // resolved target relative to the site root
	Tag    string `json:"tag"`
}

func (b BrokenLink) String() string {
	return fmt.Sprintf("%s: broken %s link %q (%s)", b.Page, b.Tag, b.URL, b.Target)
}

// Verifier checks the internal links of every HTML page under a site root.
type Verifier struct {
	root string
}

// NewVerifier returns a verifier for the tree rooted at root.
func NewVerifier(root string) *Verifier {
	return &Verifier{root: root}
}

// Verify walks every .html page and returns broken internal links ordered by
// page then link. It stops early when ctx is canceled.
func (v *Verifier) Verify(ctx context.Context) ([]BrokenLink, error) {
	var broken []BrokenLink
	err := filepath.WalkDir(v.root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(file), ".html") {
			return nil
		}
		found, err := v.verifyPage(file)
		if err != nil {
			slog.Warn("Link verification skipped page", logfields.Path(file), logfields.Error(err))
			return nil
		}
		broken = append(broken, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(broken, func(i, j int) bool {
		if broken[i].Page != broken[j].Page {
			return broken[i].Page < broken[j].Page
		}
		return broken[i].URL < broken[j].URL
	})
	return broken, nil
}

func (v *Verifier) verifyPage(file string) ([]BrokenLink, error) {
	links, err := ExtractLinks(file)
	if err != nil {
		return nil, err
	}
	page, err := filepath.Rel(v.root, file)
	if err != nil {
		return nil, err
	}
	page = filepath.ToSlash(page)

	var broken []BrokenLink
	for _, link := range links {
		if !link.IsInternal {
			continue
		}
		target, ok := resolve(page, link.URL)
		if !ok || !v.exists(target) {
			broken = append(broken, BrokenLink{Page: page, URL: link.URL, Target: target, Tag: link.Tag})
		}
	}
	return broken, nil
}

// resolve maps a link on page to a slash path relative to the site root.
// ok is false when the link escapes the root.
func resolve(page, link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return link, false
	}
	p, err := url.PathUnescape(u.Path)
	if err != nil {
		p = u.Path
	}
	if p == "" {
		return page, true
	}

	var rel string
	if strings.HasPrefix(p, "/") {
		rel = strings.TrimPrefix(path.Clean(p), "/")
	} else {
		rel = path.Join(path.Dir(page), p)
		if rel == ".." || strings.HasPrefix(rel, "../") {
			return rel, false
		}
		if rel == "." {
			rel = ""
		}
	}
	if rel == "" || strings.HasSuffix(p, "/") {
		return path.Join(rel, "index.html"), true
	}
	return rel, true
}

func (v *Verifier) exists(target string) bool {
	info, err := os.Stat(filepath.Join(v.root, filepath.FromSlash(target)))
	if err != nil {
		return false
	}
	if info.IsDir() {
		_, err = os.Stat(filepath.Join(v.root, filepath.FromSlash(target), "index.html"))
		return err == nil
	}
	return true
}
