// Package wiki is the wiki document source: persistence of documents in the
// shared SQLite database, the indexability policy, and the transformation of
// a document into its search representation.
package wiki

import (
	"strings"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/source"
)

const (
	// Kind tags wiki documents in outdated records.
	Kind = "wiki.document"
	// DocTypeName is the document type written to the index.
	DocTypeName = "wiki_document"
)

// Parent is the denormalised parent summary stored with a translation.
type Parent struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Slug   string `json:"slug"`
	Locale string `json:"locale"`
}

// Document is one wiki page.
type Document struct {
	ID         int64     `json:"id"`
	Slug       string    `json:"slug"`
	Locale     string    `json:"locale"`
	Title      string    `json:"title"`
	Summary    string    `json:"summary"`
	HTML       string    `json:"html"`
	Tags       []string  `json:"tags"`
	ParentID   int64     `json:"parent_id,omitempty"`
	IsTemplate bool      `json:"is_template"`
	IsRedirect bool      `json:"is_redirect"`
	Deleted    bool      `json:"deleted"`
	Modified   time.Time `json:"modified"`

	// Parent is filled in by the store on reads.
	Parent *Parent `json:"-"`
}

// Ref implements source.Entity.
func (d *Document) Ref() source.Ref {
	return source.Ref{Kind: Kind, ID: d.ID}
}

// TopLevel reports whether the slug has a single path segment.
func (d *Document) TopLevel() bool {
	return !strings.Contains(strings.Trim(d.Slug, "/"), "/")
}
