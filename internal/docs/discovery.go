package docs

import (
	"fmt"
	"io/fs"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	derrors "git.home.luguber.info/inful/gongjeon/internal/docs/errors"
	"git.home.luguber.info/inful/gongjeon/internal/logfields"
)

// DocFile represents a discovered Markdown source.
type DocFile struct {
	Path         string // Absolute path to the file
	RelativePath string // Path relative to the content root
	Section      string // Directory relative to the root; empty at the root level
	Name         string // File name without extension
}

// Warning is a non-fatal problem found while walking the content tree.
type Warning struct {
	Path string
	Err  error
}

func (w Warning) Error() string { return fmt.Sprintf("%s: %v", w.Path, w.Err) }

func (w Warning) Unwrap() error { return w.Err }

// Discovery walks a content root for Markdown sources.
type Discovery struct {
	root string

	mu       sync.Mutex
	resolved string
	warnings []Warning
	err      error
}

// NewDiscovery creates a discovery rooted at root.
func NewDiscovery(root string) *Discovery {
	return &Discovery{root: root}
}

// Files lazily yields every regular Markdown file below the root in lexical
// order. Hidden files are content like any other; only version-control
// directories are skipped. Symlinks and unreadable directories are recorded as
// warnings. A root that cannot be walked at all yields nothing and
// is reported by Err.
func (d *Discovery) Files() iter.Seq[DocFile] {
	return func(yield func(DocFile) bool) {
		d.reset()

		root, err := d.resolveRoot()
		if err != nil {
			d.setErr(err)
			return
		}
		d.mu.Lock()
		d.resolved = root
		d.mu.Unlock()

		walkErr := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if path == root {
					return fmt.Errorf("%w: %s: %w", derrors.ErrDirUnreadable, path, err)
				}
				d.warn(path, fmt.Errorf("%w: %w", derrors.ErrDirUnreadable, err))
				if entry != nil && entry.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if path == root {
				return nil
			}

			if entry.IsDir() && IsIgnoredDir(entry.Name()) {
				return fs.SkipDir
			}
			if entry.Type()&fs.ModeSymlink != 0 {
				d.warn(path, derrors.ErrSymlinkSkipped)
				return nil
			}
			if entry.IsDir() || !entry.Type().IsRegular() || !IsMarkdownFile(entry.Name()) {
				return nil
			}

			rel, err := filepath.Rel(root, path)
			if err != nil {
				d.warn(path, err)
				return nil
			}
			section := filepath.Dir(rel)
			if section == "." {
				section = ""
			}
			doc := DocFile{
				Path:         path,
				RelativePath: rel,
				Section:      section,
				Name:         strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			}
			slog.Debug("Discovered file", logfields.File(rel), slog.String("section", section))
			if !yield(doc) {
				return fs.SkipAll
			}
			return nil
		})
		if walkErr != nil {
			d.setErr(walkErr)
		}
	}
}

// Discover collects every file Files yields and returns the fatal root error, if any.
func (d *Discovery) Discover() ([]DocFile, error) {
	var files []DocFile
	for f := range d.Files() {
		files = append(files, f)
	}
	if err := d.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// Root returns the absolute, symlink-resolved root of the most recent walk.
// Every DocFile.Path lies below it. Before a walk it returns the configured root.
func (d *Discovery) Root() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.resolved == "" {
		return d.root
	}
	return d.resolved
}

// Err reports the fatal error of the most recent walk.
func (d *Discovery) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Warnings returns the non-fatal problems recorded by the most recent walk.
func (d *Discovery) Warnings() []Warning {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Warning, len(d.warnings))
	copy(out, d.warnings)
	return out
}

func (d *Discovery) resolveRoot() (string, error) {
	abs, err := filepath.Abs(d.root)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", derrors.ErrContentRootNotFound, d.root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", derrors.ErrContentRootNotFound, abs)
		}
		return "", fmt.Errorf("%w: %s: %w", derrors.ErrDirUnreadable, abs, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", derrors.ErrContentRootNotDir, abs)
	}
	// A root given through a symlink is resolved once; links below it are not followed.
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

func (d *Discovery) reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = nil
	d.err = nil
}

func (d *Discovery) warn(path string, err error) {
	slog.Warn("Skipping content entry", logfields.Path(path), logfields.Error(err))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.warnings = append(d.warnings, Warning{Path: path, Err: err})
}

func (d *Discovery) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// IsIgnoredDir reports whether a directory name belongs to version-control
// metadata rather than content.
func IsIgnoredDir(name string) bool {
	switch name {
	case ".git", ".hg", ".svn", ".bzr":
		return true
	}
	return false
}

// IsMarkdownFile reports whether name carries a .md extension (any case).
func IsMarkdownFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}
