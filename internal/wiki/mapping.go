package wiki

import (
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/single"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
)

const (
	// ContentAnalyzer stems body text and drops stop words.
	ContentAnalyzer = "wiki_content"
	// TitleAnalyzer stems titles but keeps stop words.
	TitleAnalyzer = "wiki_title"
	// CaseInsensitiveKeyword indexes whole values lowercased.
	CaseInsensitiveKeyword = "case_insensitive_keyword"
)

// Mapping returns the index mapping for wiki documents.
func Mapping() (mapping.IndexMapping, error) {
	im := bleve.NewIndexMapping()

	analyzers := map[string]map[string]any{
		ContentAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": []string{en.PossessiveName, lowercase.Name, en.StopName, en.SnowballStemmerName},
		},
		TitleAnalyzer: {
			"type":          custom.Name,
			"tokenizer":     unicode.Name,
			"token_filters": []string{en.PossessiveName, lowercase.Name, en.SnowballStemmerName},
		},
		CaseInsensitiveKeyword: {
			"type":          custom.Name,
			"tokenizer":     single.Name,
			"token_filters": []string{lowercase.Name},
		},
	}
	for name, def := range analyzers {
		if err := im.AddCustomAnalyzer(name, def); err != nil {
			return nil, fmt.Errorf("failed to add analyzer %s: %w", name, err)
		}
	}

	text := func(analyzer string) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = analyzer
		f.Store = true
		f.IncludeTermVectors = true
		return f
	}
	kw := func(analyzer string) *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = analyzer
		f.Store = true
		f.IncludeInAll = false
		return f
	}

	parent := bleve.NewDocumentMapping()
	parent.AddFieldMappingsAt("id", bleve.NewNumericFieldMapping())
	parent.AddFieldMappingsAt("title", text(TitleAnalyzer))
	parent.AddFieldMappingsAt("slug", kw(keyword.Name))
	parent.AddFieldMappingsAt("locale", kw(keyword.Name))

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("id", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("boost", bleve.NewNumericFieldMapping())
	doc.AddFieldMappingsAt("modified", bleve.NewDateTimeFieldMapping())
	doc.AddFieldMappingsAt("title", text(TitleAnalyzer))
	doc.AddFieldMappingsAt("summary", text(ContentAnalyzer))
	doc.AddFieldMappingsAt("content", text(ContentAnalyzer))
	doc.AddFieldMappingsAt("slug", kw(keyword.Name))
	doc.AddFieldMappingsAt("locale", kw(keyword.Name))
	doc.AddFieldMappingsAt("tags", kw(keyword.Name))
	doc.AddFieldMappingsAt("kumascript_macros", kw(CaseInsensitiveKeyword))
	doc.AddFieldMappingsAt("css_classnames", kw(CaseInsensitiveKeyword))
	doc.AddFieldMappingsAt("html_attributes", kw(CaseInsensitiveKeyword))
	doc.AddSubDocumentMapping("parent", parent)

	im.AddDocumentMapping(DocTypeName, doc)
	im.DefaultMapping = doc
	im.DefaultAnalyzer = ContentAnalyzer
	return im, nil
}

// SearchFields maps the text fields queried by free-text search to their boost.
var SearchFields = map[string]float64{
	"title":   1.2,
	"summary": 1.0,
	"content": 1.0,
}
