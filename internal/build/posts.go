package build

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"git.home.luguber.info/inful/gongjeon/internal/frontmatter"
	"git.home.luguber.info/inful/gongjeon/internal/templates"
)

// RenderedPost is a source document that was converted and written.
type RenderedPost struct {
	SourcePath string // absolute source path
	OutputPath string // final location in the output directory
	URL        string // output path relative to the output root, slash separated
	Metadata   frontmatter.Metadata
	// Fingerprint identifies the source content (front matter and body).
	Fingerprint string
}

// IndexEntry is the projection of a RenderedPost shown on the index page.
type IndexEntry = templates.IndexEntry

// dateLayouts are tried in order when ordering posts.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.DateOnly,
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortPosts orders posts newest first. Posts whose date does not parse go
// after all dated posts, by raw date string descending. Remaining ties are
// broken by source path ascending.
func sortPosts(posts []RenderedPost) {
	type key struct {
		t  time.Time
		ok bool
	}
	keys := make(map[string]key, len(posts))
	for _, p := range posts {
		t, ok := parseDate(p.Metadata.Date)
		keys[p.SourcePath] = key{t, ok}
	}
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		ka, kb := keys[a.SourcePath], keys[b.SourcePath]
		switch {
		case ka.ok && kb.ok:
			if !ka.t.Equal(kb.t) {
				return ka.t.After(kb.t)
			}
		case ka.ok != kb.ok:
			return ka.ok
		default:
			if a.Metadata.Date != b.Metadata.Date {
				return a.Metadata.Date > b.Metadata.Date
			}
		}
		return a.SourcePath < b.SourcePath
	})
}

// humanizeStem turns "my-first_post.md" into "My First Post".
func humanizeStem(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	words := strings.FieldsFunc(stem, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	if len(words) == 0 {
		return stem
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// indexEntries projects sorted posts into index entries.
func indexEntries(posts []RenderedPost) []IndexEntry {
	entries := make([]IndexEntry, 0, len(posts))
	for _, p := range posts {
		title := p.Metadata.Title
		if strings.TrimSpace(title) == "" {
			title = humanizeStem(p.SourcePath)
		}
		entries = append(entries, IndexEntry{
			URL:         p.URL,
			Title:       title,
			Description: p.Metadata.Description,
			Date:        p.Metadata.Date,
		})
	}
	return entries
}

// contentHash combines the URL and fingerprint of every post in index order.
func contentHash(posts []RenderedPost) string {
	h := sha256.New()
	for _, p := range posts {
		h.Write([]byte(p.URL))
		h.Write([]byte{0})
		h.Write([]byte(p.Fingerprint))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
