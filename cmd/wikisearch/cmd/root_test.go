package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/wikisearch/pkg/version"
)

// execute runs the root command with args and returns its combined output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// writeConfig creates a config file whose data directory lives in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf(`paths:
  data_dir: %s
reindex:
  chunk_size: 2
`, filepath.Join(dir, "data"))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRootCmd_ShowsHelp(t *testing.T) {
	// Given: a root command

	// When: executing with --help
	out, err := execute(t, "--help")

	// Then: every lifecycle command is listed
	require.NoError(t, err)
	for _, name := range []string{"reindex", "promote", "demote", "delete", "gc", "generations", "outdated", "search", "serve"} {
		assert.Contains(t, out, name)
	}
}

func TestRootCmd_InvalidConfigFile(t *testing.T) {
	path := writeFile(t, "config.yaml", "server:\n  log_level: loud\n")

	_, err := execute(t, "--config", path, "generations")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short()+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Contains(t, info, "version")

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "wikisearch "))
}

func TestParseFacets(t *testing.T) {
	got, err := parseFacets([]string{"topics=css", "topics = html", "tools=devtools"})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"topics": {"css", "html"},
		"tools":  {"devtools"},
	}, got)

	got, err = parseFacets(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"topics", "=css", "topics="} {
		_, err := parseFacets([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestSearchCmd_RejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "search", "x", "--format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestReindexCmd_InPlaceAndGenerationConflict(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "reindex", "--in-place", "--generation", "main_index")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be combined")
}

func TestGenerationsCmd_BootstrapsDefault(t *testing.T) {
	// Given: an empty data directory
	cfg := writeConfig(t)

	// When: listing generations
	out, err := execute(t, "--config", cfg, "generations", "--json")

	// Then: the default generation exists and is current
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "main_index", rows[0]["name"])
	assert.Equal(t, true, rows[0]["current"])
	assert.Equal(t, "wiki-main_index", rows[0]["index"])
}

func TestPromoteCmd_UnknownGeneration(t *testing.T) {
	_, err := execute(t, "--config", writeConfig(t), "promote", "nope")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

const docsJSONL = `{"slug":"Web/CSS/flex","locale":"en-US","title":"Flexbox","summary":"Flexible box layout.","html":"<p>The flexbox layout model.</p>","tags":["CSS"]}
{"slug":"Web/HTML/div","locale":"en-US","title":"div element","summary":"Generic container.","html":"<p>The div element.</p>","tags":["HTML"]}

{"slug":"Talk:Web/CSS/flex","locale":"en-US","title":"Talk about flexbox","html":"<p>flexbox chatter</p>","tags":["CSS"]}
`

const filtersYAML = `groups:
  - name: Topics
    filters:
      - name: CSS
        tags: [CSS]
      - name: HTML
        tags: [HTML]
`

func generationNames(t *testing.T, cfg string) []map[string]any {
	t.Helper()
	out, err := execute(t, "--config", cfg, "generations", "--json")
	require.NoError(t, err)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	return rows
}

func TestLifecycle_ImportReindexPromoteSearchCollect(t *testing.T) {
	cfg := writeConfig(t)

	// Given: imported documents and filters
	out, err := execute(t, "--config", cfg, "docs", "import", writeFile(t, "docs.jsonl", docsJSONL))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 3 documents")

	out, err = execute(t, "--config", cfg, "filters", "import", writeFile(t, "filters.yaml", filtersYAML))
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2 filters")

	// When: rebuilding into a new generation
	out, err = execute(t, "--config", cfg, "reindex", "--plain")
	require.NoError(t, err)

	// Then: the talk page is excluded and the new generation is not yet current
	assert.Contains(t, out, "populated with 2 documents")
	rows := generationNames(t, cfg)
	require.Len(t, rows, 2)
	fresh := rows[0]["name"].(string)
	assert.NotEqual(t, "main_index", fresh)
	assert.Equal(t, false, rows[0]["current"])
	assert.Equal(t, "populated", rows[0]["state"])
	assert.Equal(t, true, rows[1]["current"])

	// When: promoting it and demoting the previous one
	out, err = execute(t, "--config", cfg, "promote", fresh, "--demote-previous")
	require.NoError(t, err)
	assert.Contains(t, out, "Promoted "+fresh)
	assert.Contains(t, out, "Demoted main_index")

	// Then: searches are served from the new generation
	out, err = execute(t, "--config", cfg, "search", "flexbox", "--format", "json")
	require.NoError(t, err)
	var res struct {
		Total      uint64 `json:"total"`
		Generation string `json:"generation"`
		Hits       []struct {
			Slug string `json:"slug"`
		} `json:"hits"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, uint64(1), res.Total)
	assert.Equal(t, fresh, res.Generation)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "Web/CSS/flex", res.Hits[0].Slug)

	out, err = execute(t, "--config", cfg, "search", "--facet", "topics=html")
	require.NoError(t, err)
	assert.Contains(t, out, "div element")
	assert.NotContains(t, out, "Flexbox")

	// And: both searches were recorded
	out, err = execute(t, "--config", cfg, "stats", "--json")
	require.NoError(t, err)
	var stats struct {
		TotalQueries int64            `json:"total_queries"`
		KindCounts   map[string]int64 `json:"kind_counts"`
		TopTerms     []struct {
			Term string `json:"term"`
		} `json:"top_terms"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.KindCounts["facet"])
	require.NotEmpty(t, stats.TopTerms)
	assert.Equal(t, "flexbox", stats.TopTerms[0].Term)

	// And: the demoted default generation is collected
	out, err = execute(t, "--config", cfg, "gc", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would delete main_index")

	out, err = execute(t, "--config", cfg, "gc")
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted main_index")
	assert.Len(t, generationNames(t, cfg), 1)

	out, err = execute(t, "--config", cfg, "outdated", fresh)
	require.NoError(t, err)
	assert.Contains(t, out, "No outdated records")
}

func TestDeleteCmd_RefusesPromoted(t *testing.T) {
	cfg := writeConfig(t)
	_ = generationNames(t, cfg)

	_, err := execute(t, "--config", cfg, "delete", "main_index")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "promoted")
}

func TestInitCmd_WritesTemplates(t *testing.T) {
	// Given: an empty directory
	dir := t.TempDir()

	// When: initialising with filters
	out, err := execute(t, "init", dir, "--filters")

	// Then: both files exist and a second run refuses to overwrite
	require.NoError(t, err)
	assert.Contains(t, out, ".wikisearch.yaml")
	assert.FileExists(t, filepath.Join(dir, ".wikisearch.yaml"))
	assert.FileExists(t, filepath.Join(dir, "filters.yaml"))

	_, err = execute(t, "init", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "init", dir, "--force")
	assert.NoError(t, err)
}

func TestDoctorCmd_JSON(t *testing.T) {
	cfg := writeConfig(t)

	out, err := execute(t, "--config", cfg, "doctor", "--json")

	require.NoError(t, err)
	var report struct {
		Status string `json:"status"`
		Checks []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEqual(t, "failed", report.Status)
	names := make([]string, 0, len(report.Checks))
	for _, c := range report.Checks {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "data_dir")
	assert.Contains(t, names, "reindex_lock")
	assert.Contains(t, names, "current_index")
}

func TestRootCmd_ProfilesCommand(t *testing.T) {
	heap := filepath.Join(t.TempDir(), "heap.prof")

	_, err := execute(t, "--profile-mem", heap, "version", "--short")

	require.NoError(t, err)
	assert.FileExists(t, heap)
}
