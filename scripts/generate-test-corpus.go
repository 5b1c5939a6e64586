//go:build ignore

// Package main generates a synthetic wiki corpus as JSON lines for
// `wikisearch docs import`, for load testing rebuilds.
// Usage: go run scripts/generate-test-corpus.go -docs 10000 -output testdata/corpus.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"slices"
	"strings"
)

var (
	numDocs    = flag.Int("docs", 10000, "Number of documents to generate")
	outputPath = flag.String("output", "testdata/corpus.jsonl", "Output file (- for stdout)")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
	locales    = flag.String("locales", "en-US,fr,de,ja", "Comma-separated locales")
	talkRatio  = flag.Float64("talk", 0.05, "Fraction of talk pages (excluded from the index)")
)

type document struct {
	Slug       string   `json:"slug"`
	Locale     string   `json:"locale"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	HTML       string   `json:"html"`
	Tags       []string `json:"tags"`
	IsTemplate bool     `json:"is_template,omitempty"`
	IsRedirect bool     `json:"is_redirect,omitempty"`
}

var sections = map[string][]string{
	"Web/CSS":        {"color", "display", "flex", "grid", "margin", "padding", "position", "transform", "transition", "z-index"},
	"Web/HTML":       {"div", "span", "canvas", "video", "audio", "form", "input", "template", "dialog", "details"},
	"Web/JavaScript": {"Array", "Promise", "Map", "Set", "Proxy", "Reflect", "Symbol", "WeakMap", "Intl", "JSON"},
	"Web/API":        {"fetch", "WebSocket", "IndexedDB", "Worker", "Canvas_API", "Web_Audio_API", "Geolocation", "Notifications"},
	"Learn":          {"Getting_started", "Accessibility", "Performance", "Forms", "Tools_and_testing"},
}

var sectionTags = map[string][]string{
	"Web/CSS":        {"CSS", "Reference", "Layout"},
	"Web/HTML":       {"HTML", "HTML5", "Element"},
	"Web/JavaScript": {"JavaScript", "Reference", "ECMAScript"},
	"Web/API":        {"API", "DOM", "Apps"},
	"Learn":          {"Beginner", "Guide", "Advanced"},
}

var words = []string{
	"property", "element", "value", "browser", "layout", "syntax", "example",
	"specification", "compatibility", "attribute", "method", "event", "style",
	"document", "request", "response", "render", "inherit", "initial", "default",
}

func sentence(r *rand.Rand, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = words[r.Intn(len(words))]
	}
	s := strings.Join(parts, " ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}

func pickTags(r *rand.Rand, pool []string) []string {
	n := 1 + r.Intn(len(pool))
	perm := r.Perm(len(pool))[:n]
	tags := make([]string, 0, n)
	for _, i := range perm {
		tags = append(tags, pool[i])
	}
	return tags
}

func generate(r *rand.Rand, i int, locs []string) document {
	keys := make([]string, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	// map order is random; sort for reproducibility
	slices.Sort(keys)

	section := keys[r.Intn(len(keys))]
	topics := sections[section]
	topic := topics[r.Intn(len(topics))]
	slug := fmt.Sprintf("%s/%s_%d", section, topic, i)
	if r.Float64() < *talkRatio {
		slug = "Talk:" + slug
	}

	var body strings.Builder
	for p := 0; p < 2+r.Intn(5); p++ {
		fmt.Fprintf(&body, "<p>%s %s</p>\n", sentence(r, 8+r.Intn(12)), sentence(r, 6+r.Intn(10)))
	}

	return document{
		Slug:       slug,
		Locale:     locs[r.Intn(len(locs))],
		Title:      strings.ReplaceAll(topic, "_", " "),
		Summary:    sentence(r, 10),
		HTML:       body.String(),
		Tags:       pickTags(r, sectionTags[section]),
		IsTemplate: r.Float64() < 0.01,
		IsRedirect: r.Float64() < 0.02,
	}
}

func main() {
	flag.Parse()
	r := rand.New(rand.NewSource(*seed))
	locs := strings.Split(*locales, ",")

	out := os.Stdout
	if *outputPath != "-" {
		f, err := os.Create(*outputPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating %s: %v\n", *outputPath, err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for i := 0; i < *numDocs; i++ {
		if err := enc.Encode(generate(r, i, locs)); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing document %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing output: %v\n", err)
		os.Exit(1)
	}
	if *outputPath != "-" {
		fmt.Fprintf(os.Stderr, "Generated %d documents in %s\n", *numDocs, *outputPath)
	}
}
