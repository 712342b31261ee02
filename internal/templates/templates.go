// Package templates renders complete HTML pages around converted Markdown.
//
// Each page kind is parsed once into its own set together with the shared
// base layout. Defaults are embedded; a directory may override any of
// base.html.tmpl, post.html.tmpl and index.html.tmpl.
package templates

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/gongjeon/internal/frontmatter"
)

// ErrTemplateConfig indicates the template set could not be loaded or parsed.
var ErrTemplateConfig = errors.New("template configuration error")

const (
	BaseTemplate  = "base.html.tmpl"
	PostTemplate  = "post.html.tmpl"
	IndexTemplate = "index.html.tmpl"
)

//go:embed defaults/*.html.tmpl
var embeddedTemplates embed.FS

// Site is the context shared by every page.
type Site struct {
	Title string
	Intro string
}

// Options configures template loading.
type Options struct {
	// Dir holds template overrides. Empty means embedded defaults only.
	Dir string
}

// Source records where a template body came from.
type Source struct {
	Source string `json:"source"` // "embedded" or "file"
	Path   string `json:"path,omitempty"`
}

// IndexEntry is one line of the site index.
type IndexEntry struct {
	URL         string
	Title       string
	Description string
	Date        string
}

// PostPage is the input for a single post.
type PostPage struct {
	// Content is a trusted HTML fragment and is inserted without escaping.
	Content string
	Meta    frontmatter.Metadata
	// URL is the page location relative to the output root, slash separated.
	URL string
}

type postData struct {
	Site    Site
	Root    string
	Meta    frontmatter.Metadata
	Content template.HTML
}

type indexData struct {
	Site  Site
	Root  string
	Posts []IndexEntry
}

// Templater holds the parsed page templates. It is safe for concurrent use.
type Templater struct {
	site    Site
	post    *template.Template
	index   *template.Template
	sources map[string]Source
}

// New loads and parses the template set. Any failure wraps ErrTemplateConfig.
func New(site Site, opts Options) (*Templater, error) {
	t := &Templater{site: site, sources: make(map[string]Source, 3)}

	bodies := make(map[string]string, 3)
	for _, name := range []string{BaseTemplate, PostTemplate, IndexTemplate} {
		body, src, err := loadTemplate(opts.Dir, name)
		if err != nil {
			return nil, err
		}
		bodies[name] = body
		t.sources[name] = src
	}

	var err error
	if t.post, err = parseSet("post", bodies[BaseTemplate], bodies[PostTemplate]); err != nil {
		return nil, err
	}
	if t.index, err = parseSet("index", bodies[BaseTemplate], bodies[IndexTemplate]); err != nil {
		return nil, err
	}
	return t, nil
}

// Sources reports the origin of each template body.
func (t *Templater) Sources() map[string]Source {
	out := make(map[string]Source, len(t.sources))
	for k, v := range t.sources {
		out[k] = v
	}
	return out
}

// RenderPost renders a complete post page.
func (t *Templater) RenderPost(page PostPage) ([]byte, error) {
	return execute(t.post, postData{
		Site:    t.site,
		Root:    rootPrefix(page.URL),
		Meta:    page.Meta,
		Content: template.HTML(page.Content), //nolint:gosec // fragment produced by the Markdown renderer
	})
}

// RenderIndex renders the site index. Entries are rendered in the given order.
func (t *Templater) RenderIndex(entries []IndexEntry) ([]byte, error) {
	return execute(t.index, indexData{Site: t.site, Posts: entries})
}

func execute(tpl *template.Template, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, "base", data); err != nil {
		return nil, fmt.Errorf("render %s template: %w", tpl.Name(), err)
	}
	return buf.Bytes(), nil
}

func parseSet(name, base, page string) (*template.Template, error) {
	tpl, err := template.New(name).Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrTemplateConfig, BaseTemplate, err)
	}
	if _, err := tpl.Parse(page); err != nil {
		return nil, fmt.Errorf("%w: parse %s template: %w", ErrTemplateConfig, name, err)
	}
	if tpl.Lookup("base") == nil {
		return nil, fmt.Errorf("%w: %s does not define \"base\"", ErrTemplateConfig, BaseTemplate)
	}
	return tpl, nil
}

// loadTemplate returns a user override body or the embedded default.
func loadTemplate(dir, name string) (string, Source, error) {
	if dir != "" {
		p := filepath.Join(dir, name)
		b, err := os.ReadFile(p)
		switch {
		case err == nil && strings.TrimSpace(string(b)) != "":
			return string(b), Source{Source: "file", Path: p}, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", Source{}, fmt.Errorf("%w: read %s: %w", ErrTemplateConfig, p, err)
		}
	}
	b, err := embeddedTemplates.ReadFile(path.Join("defaults", name))
	if err != nil {
		return "", Source{}, fmt.Errorf("%w: embedded %s: %w", ErrTemplateConfig, name, err)
	}
	return string(b), Source{Source: "embedded"}, nil
}

// rootPrefix returns the relative path from a page back to the output root.
func rootPrefix(url string) string {
	depth := strings.Count(strings.Trim(url, "/"), "/")
	return strings.Repeat("../", depth)
}
