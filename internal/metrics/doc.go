// Package metrics provides build observability hooks.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so no nil checks are needed at call sites. When metrics are
// enabled in configuration, a PrometheusRecorder is injected instead and its
// registry is exposed by the preview server through HTTPHandler.
package metrics
