package build

import (
	"errors"
	"fmt"

	"git.home.luguber.info/inful/gongjeon/internal/frontmatter"
	"git.home.luguber.info/inful/gongjeon/internal/paths"
	"git.home.luguber.info/inful/gongjeon/internal/templates"
)

// Sentinel errors used to classify build failures. They are always wrapped
// with contextual information at the call site.
var (
	ErrDiscovery = errors.New("discovery error")
	ErrRead      = errors.New("read error")
	// ErrInvalidEncoding marks a source that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("content is not valid UTF-8")
	ErrMetadataParse   = frontmatter.ErrMetadataParse
	ErrRender          = errors.New("render error")
	ErrWrite           = errors.New("write error")
	ErrPathMapping     = paths.ErrPathMapping
	ErrTemplateConfig  = templates.ErrTemplateConfig
	ErrStaging         = errors.New("staging error")
	ErrBuildAborted    = errors.New("build aborted")
	// ErrSuperseded is returned by Coordinator.Rebuild when a newer request
	// replaced this one before it started.
	ErrSuperseded = errors.New("build superseded")
)

// DocumentErrorKind names the step of per-document conversion that failed.
type DocumentErrorKind string

const (
	KindRead          DocumentErrorKind = "read"
	KindMetadataParse DocumentErrorKind = "metadata_parse"
	KindRender        DocumentErrorKind = "render"
	KindPathMapping   DocumentErrorKind = "path_mapping"
	KindWrite         DocumentErrorKind = "write"
)

// sentinel returns the sentinel error a kind is classified under.
func (k DocumentErrorKind) sentinel() error {
	switch k {
	case KindRead:
		return ErrRead
	case KindMetadataParse:
		return ErrMetadataParse
	case KindRender:
		return ErrRender
	case KindPathMapping:
		return ErrPathMapping
	case KindWrite:
		return ErrWrite
	default:
		return nil
	}
}

// DocumentError records a single source document that could not be converted.
type DocumentError struct {
	Kind DocumentErrorKind
	Path string // source path
	Err  error
}

func newDocumentError(kind DocumentErrorKind, path string, err error) *DocumentError {
	if s := kind.sentinel(); s != nil && !errors.Is(err, s) {
		err = fmt.Errorf("%w: %w", s, err)
	}
	return &DocumentError{Kind: kind, Path: path, Err: err}
}

func (e *DocumentError) Error() string { return fmt.Sprintf("%s %s: %v", e.Kind, e.Path, e.Err) }
func (e *DocumentError) Unwrap() error { return e.Err }
