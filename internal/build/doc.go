// Package build turns a content tree of Markdown documents into a complete
// HTML site.
//
// A build runs a fixed stage pipeline (prepare_output, discover, convert,
// write_index, verify_links, finalize) against a fresh staging directory that
// replaces the output directory only when every fatal stage succeeded.
// Per-document failures are collected in the Report and never abort the
// build on their own. All execution paths (CLI, preview, tests) route through
// Builder.Build; overlapping rebuild requests go through a Coordinator.
package build
