package wiki

import "strings"

// DefaultExcludePrefixes are the namespaces never indexed.
var DefaultExcludePrefixes = []string{"Talk:", "User:", "User_talk:", "Template_talk:", "Project_talk:"}

// Excluded reports whether any path segment of slug starts with one of
// prefixes, ignoring case.
func Excluded(slug string, prefixes []string) bool {
	for _, seg := range strings.Split(slug, "/") {
		seg = strings.ToLower(seg)
		for _, p := range prefixes {
			if p != "" && strings.HasPrefix(seg, strings.ToLower(p)) {
				return true
			}
		}
	}
	return false
}

// Indexable is the single-document form of the policy behind
// Store.IndexableIDs: templates, redirects, deleted documents and excluded
// namespaces are never indexed.
func Indexable(d *Document, prefixes []string) bool {
	if d == nil {
		return false
	}
	return !d.IsTemplate && !d.IsRedirect && !d.Deleted && !Excluded(d.Slug, prefixes)
}
