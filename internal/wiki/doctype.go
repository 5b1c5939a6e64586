package wiki

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/Aman-CERP/wikisearch/internal/source"
)

// DocType adapts Store to source.Type.
type DocType struct {
	store    *Store
	prefixes []string
}

var _ source.Type = (*DocType)(nil)

// NewDocType creates the wiki document type. Nil prefixes means
// DefaultExcludePrefixes.
func NewDocType(store *Store, excludePrefixes []string) *DocType {
	if excludePrefixes == nil {
		excludePrefixes = DefaultExcludePrefixes
	}
	return &DocType{store: store, prefixes: excludePrefixes}
}

// Kind implements source.Type.
func (t *DocType) Kind() string { return Kind }

// DocType implements source.Type.
func (t *DocType) DocType() string { return DocTypeName }

// Fetch implements source.Type.
func (t *DocType) Fetch(ctx context.Context, ids []int64) ([]source.Entity, error) {
	docs, err := t.store.Fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]source.Entity, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out, nil
}

// IndexableIDs implements source.Type.
func (t *DocType) IndexableIDs(ctx context.Context) ([]int64, error) {
	return t.store.IndexableIDs(ctx, t.prefixes)
}

// ShouldIndex implements source.Type.
func (t *DocType) ShouldIndex(e source.Entity) bool {
	d, ok := e.(*Document)
	return ok && Indexable(d, t.prefixes)
}

// Transform implements source.Type.
func (t *DocType) Transform(e source.Entity) (source.Document, error) {
	d, ok := e.(*Document)
	if !ok {
		return nil, fmt.Errorf("unexpected entity %T for %s", e, Kind)
	}

	ex, err := extract(d.HTML)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html of document %d: %w", d.ID, err)
	}

	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := source.Document{
		"id":                d.ID,
		"title":             d.Title,
		"slug":              d.Slug,
		"locale":            d.Locale,
		"summary":           stripTags(d.Summary),
		"content":           ex.text,
		"tags":              tags,
		"kumascript_macros": macroNames(d.HTML),
		"css_classnames":    ex.classes,
		"html_attributes":   ex.attributes,
		"boost":             1.0,
	}
	if !d.Modified.IsZero() {
		doc["modified"] = d.Modified
	}
	if d.TopLevel() {
		doc["boost"] = 4.0
	}
	if d.Parent != nil {
		doc["parent"] = map[string]any{
			"id":     d.Parent.ID,
			"title":  d.Parent.Title,
			"slug":   d.Parent.Slug,
			"locale": d.Parent.Locale,
		}
	}
	return doc, nil
}

type extraction struct {
	text       string
	classes    []string
	attributes []string
}

// extract walks the rendered HTML once, collecting visible text, class
// names and name="value" attribute pairs.
func extract(src string) (extraction, error) {
	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return extraction{}, err
	}

	var (
		text    strings.Builder
		classes = make(map[string]struct{})
		attrs   = make(map[string]struct{})
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			for _, a := range n.Attr {
				if a.Key == "class" {
					for _, c := range strings.Fields(a.Val) {
						classes[c] = struct{}{}
					}
				}
				attrs[fmt.Sprintf("%s=%q", a.Key, a.Val)] = struct{}{}
			}
		case html.TextNode:
			if s := strings.TrimSpace(n.Data); s != "" {
				if text.Len() > 0 {
					text.WriteByte(' ')
				}
				text.WriteString(strings.Join(strings.Fields(s), " "))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return extraction{
		text:       text.String(),
		classes:    sortedKeys(classes),
		attributes: sortedKeys(attrs),
	}, nil
}

func stripTags(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return s
	}
	ex, err := extract(s)
	if err != nil {
		return s
	}
	return ex.text
}

var macroPattern = regexp.MustCompile(`\{\{\s*([^\s(}]+)`)

// macroNames lists the template macros called from raw content, lowercased.
func macroNames(src string) []string {
	names := make(map[string]struct{})
	for _, m := range macroPattern.FindAllStringSubmatch(src, -1) {
		names[strings.ToLower(m[1])] = struct{}{}
	}
	return sortedKeys(names)
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
