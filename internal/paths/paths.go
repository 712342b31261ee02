// Package paths maps Markdown sources under the content root to HTML pages
// under the output root.
package paths

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathMapping indicates a source path cannot be mapped into the output tree.
var ErrPathMapping = errors.New("path mapping error")

// MapOutput returns outputRoot/rel(src) with the .md extension replaced by .html.
func MapOutput(src, contentRoot, outputRoot string) (string, error) {
	rel, err := filepath.Rel(contentRoot, src)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPathMapping, src, err)
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrPathMapping, src, contentRoot)
	}
	ext := filepath.Ext(rel)
	if !strings.EqualFold(ext, ".md") {
		return "", fmt.Errorf("%w: %s is not a Markdown file", ErrPathMapping, src)
	}
	return filepath.Join(outputRoot, strings.TrimSuffix(rel, ext)+".html"), nil
}

// URL returns the slash-separated path of out relative to outputRoot.
func URL(out, outputRoot string) (string, error) {
	rel, err := filepath.Rel(outputRoot, out)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrPathMapping, out, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is not under %s", ErrPathMapping, out, outputRoot)
	}
	return filepath.ToSlash(rel), nil
}

// EnsureParent creates every missing directory above path.
func EnsureParent(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
