// Package search answers free-text queries against the current index
// generation and counts documents per facet filter.
package search

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	apperrors "github.com/Aman-CERP/wikisearch/internal/errors"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// filterSetFile is the on-disk facet definition format:
//
//	groups:
//	  - name: Topics
//	    order: 2
//	    filters:
//	      - name: CSS
//	        tags: [CSS]
//	      - name: Open Web Apps
//	        shortcut: owa
//	        tags: [Apps, Firefox OS]
//	        operator: AND
type filterSetFile struct {
	Groups []groupFile `yaml:"groups"`
}

type groupFile struct {
	Name    string       `yaml:"name"`
	Slug    string       `yaml:"slug"`
	Order   *int         `yaml:"order"`
	Filters []filterFile `yaml:"filters"`
}

type filterFile struct {
	Name     string   `yaml:"name"`
	Slug     string   `yaml:"slug"`
	Shortcut string   `yaml:"shortcut"`
	Tags     []string `yaml:"tags"`
	Operator string   `yaml:"operator"`
	Enabled  *bool    `yaml:"enabled"`
	Visible  *bool    `yaml:"visible"`
}

// ParseFilterSet reads a facet definition. Missing slugs are derived from
// names, order defaults to 1, operator to OR, enabled and visible to true.
func ParseFilterSet(r io.Reader) ([]store.FilterGroup, error) {
	var file filterSetFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, apperrors.ValidationError("failed to parse filter set", err)
	}

	groups := make([]store.FilterGroup, 0, len(file.Groups))
	groupSlugs := make(map[string]bool)
	for i, gf := range file.Groups {
		if strings.TrimSpace(gf.Name) == "" {
			return nil, apperrors.ValidationError(fmt.Sprintf("group %d has no name", i+1), nil)
		}
		g := store.FilterGroup{Name: gf.Name, Slug: gf.Slug, Order: 1}
		if g.Slug == "" {
			g.Slug = Slugify(gf.Name)
		}
		if gf.Order != nil {
			g.Order = *gf.Order
		}
		if groupSlugs[g.Slug] {
			return nil, apperrors.ValidationError(fmt.Sprintf("duplicate group slug %q", g.Slug), nil)
		}
		groupSlugs[g.Slug] = true

		slugs := make(map[string]bool)
		for _, ff := range gf.Filters {
			f, err := ff.toFilter()
			if err != nil {
				return nil, apperrors.ValidationError(fmt.Sprintf("group %q: %v", g.Slug, err), nil)
			}
			if slugs[f.Slug] {
				return nil, apperrors.ValidationError(fmt.Sprintf("group %q: duplicate filter slug %q", g.Slug, f.Slug), nil)
			}
			slugs[f.Slug] = true
			g.Filters = append(g.Filters, f)
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (ff filterFile) toFilter() (store.Filter, error) {
	if strings.TrimSpace(ff.Name) == "" {
		return store.Filter{}, fmt.Errorf("filter without name")
	}
	f := store.Filter{
		Name:     ff.Name,
		Slug:     ff.Slug,
		Shortcut: ff.Shortcut,
		Tags:     ff.Tags,
		Operator: store.OperatorOr,
		Enabled:  ff.Enabled == nil || *ff.Enabled,
		Visible:  ff.Visible == nil || *ff.Visible,
	}
	if f.Slug == "" {
		f.Slug = Slugify(ff.Name)
	}
	switch strings.ToUpper(ff.Operator) {
	case "", string(store.OperatorOr):
	case string(store.OperatorAnd):
		f.Operator = store.OperatorAnd
	default:
		return store.Filter{}, fmt.Errorf("filter %q: operator must be AND or OR, got %q", f.Slug, ff.Operator)
	}
	return f, nil
}

// ImportFilterFile replaces the stored facet configuration with the
// contents of path and returns the number of filters imported.
func ImportFilterFile(ctx context.Context, fs store.FilterStore, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, apperrors.ConfigError(fmt.Sprintf("failed to open filter set %s", path), err)
	}
	defer func() { _ = f.Close() }()

	groups, err := ParseFilterSet(f)
	if err != nil {
		return 0, err
	}
	if err := fs.ReplaceFilterSet(ctx, groups); err != nil {
		return 0, apperrors.StoreError("failed to store filter set", err)
	}
	n := 0
	for _, g := range groups {
		n += len(g.Filters)
	}
	return n, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases s, drops accents and punctuation and joins words with
// hyphens: "Open Web Apps" becomes "open-web-apps".
func Slugify(s string) string {
	plain, _, err := transform.String(stripMarks, s)
	if err != nil {
		plain = s
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r):
			if b.Len() > 0 && !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}
