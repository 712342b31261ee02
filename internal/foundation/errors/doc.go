// Package errors provides classified error primitives shared by the build
// pipeline, the CLI and the preview server.
//
// A ClassifiedError carries a category (config, build, template, filesystem,
// ...) and a severity. Packages keep their own sentinel errors and wrap them
// as the cause, so callers can use both errors.Is on the sentinel and
// AsClassified for presentation:
//
//	err := errors.TemplateError("parse templates").
//		WithCause(fmt.Errorf("%w: %v", templates.ErrTemplateConfig, parseErr)).
//		WithContext("dir", dir).
//		Build()
package errors
