// Package logging configures structured slog output for wikisearch.
//
// Logs are JSON lines written to a size-rotated file under ~/.wikisearch/logs,
// optionally mirrored to stderr. Long-running components take an injected
// *slog.Logger; Default and Discard cover the nil and test cases.
package logging
