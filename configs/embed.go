// Package configs provides embedded configuration templates for wikisearch.
//
// Templates are embedded at build time so `wikisearch init` works from any
// distribution. Configuration hierarchy (see internal/config Load):
//  1. Hardcoded defaults
//  2. User config (~/.config/wikisearch/config.yaml)
//  3. Project config (.wikisearch.yaml)
//  4. Environment variables (WIKISEARCH_*)
package configs

import _ "embed"

// ConfigTemplate is written to .wikisearch.yaml by `wikisearch init`.
//
//go:embed wikisearch.example.yaml
var ConfigTemplate string

// FiltersTemplate is a starter facet definition for `wikisearch filters
// import` and server.filters_file.
//
//go:embed filters.example.yaml
var FiltersTemplate string
