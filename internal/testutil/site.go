// Package testutil holds fixtures shared by package tests: content trees on
// disk and assertions over generated output.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// WriteTree creates files below root. Keys are slash-separated relative paths.
func WriteTree(t testing.TB, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

// Post returns a Markdown document with title and date front matter.
func Post(title, date, body string) string {
	return "---\ntitle: " + title + "\ndate: " + date + "\n---\n" + body
}

// SiteAssertions checks the state of a generated output tree.
type SiteAssertions struct {
	t       testing.TB
	baseDir string
}

// NewSiteAssertions creates an assertion helper rooted at baseDir.
func NewSiteAssertions(t testing.TB, baseDir string) *SiteAssertions {
	return &SiteAssertions{t: t, baseDir: baseDir}
}

func (sa *SiteAssertions) path(rel string) string {
	return filepath.Join(sa.baseDir, filepath.FromSlash(rel))
}

// HasPage asserts that rel exists as a regular file.
func (sa *SiteAssertions) HasPage(rel string) *SiteAssertions {
	sa.t.Helper()
	assert.FileExists(sa.t, sa.path(rel))
	return sa
}

// NoPage asserts that rel does not exist.
func (sa *SiteAssertions) NoPage(rel string) *SiteAssertions {
	sa.t.Helper()
	assert.NoFileExists(sa.t, sa.path(rel))
	return sa
}

// PageContains asserts that rel contains want.
func (sa *SiteAssertions) PageContains(rel, want string) *SiteAssertions {
	sa.t.Helper()
	// #nosec G304 - test helper, paths are controlled by test code
	content, err := os.ReadFile(sa.path(rel))
	if !assert.NoError(sa.t, err, "read %s", rel) {
		return sa
	}
	assert.Contains(sa.t, string(content), want, "page %s", rel)
	return sa
}

// Pages returns every regular file below the base directory, slash-separated.
func (sa *SiteAssertions) Pages() []string {
	sa.t.Helper()
	var pages []string
	err := filepath.WalkDir(sa.baseDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(sa.baseDir, p)
		if err != nil {
			return err
		}
		pages = append(pages, filepath.ToSlash(rel))
		return nil
	})
	require.NoError(sa.t, err)
	return pages
}
