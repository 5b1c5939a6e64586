package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/store"
)

// CheckStatus represents the result of a preflight check.
type CheckStatus int

const (
	// StatusPass indicates the check passed successfully.
	StatusPass CheckStatus = iota
	// StatusWarn indicates a non-critical warning.
	StatusWarn
	// StatusFail indicates the check failed.
	StatusFail
)

// String returns the string representation of a CheckStatus.
func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(s.String())), nil
}

// CheckResult holds the result of a single preflight check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical returns true if this is a required check that failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// CurrentIndex locates the physical index of the current generation
// without bootstrapping one.
type CurrentIndex interface {
	CurrentGeneration(ctx context.Context) (*store.Generation, error)
}

// IndexProbe reports whether a physical index exists.
type IndexProbe interface {
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Target is what RunAll inspects. Index checks are skipped when Current
// or Probe is nil.
type Target struct {
	DataDir  string
	IndexDir string
	LockDir  string
	Prefix   string
	Current  CurrentIndex
	Probe    IndexProbe
}

// Checker performs preflight validation checks.
type Checker struct {
	verbose bool
	minDisk uint64
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose enables verbose output.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) {
		c.verbose = verbose
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithMinDiskSpace overrides MinDiskSpaceBytes.
func WithMinDiskSpace(bytes uint64) Option {
	return func(c *Checker) {
		c.minDisk = bytes
	}
}

// New creates a new Checker with the given options.
func New(opts ...Option) *Checker {
	c := &Checker{
		output:  os.Stdout,
		minDisk: MinDiskSpaceBytes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs all preflight checks and returns the results.
func (c *Checker) RunAll(ctx context.Context, t Target) []CheckResult {
	// Write check first: it creates the data directory the others inspect.
	results := []CheckResult{
		c.CheckWritePermissions(t.DataDir),
		c.CheckDiskSpace(t.DataDir, t.IndexDir),
		c.CheckFileDescriptors(),
	}
	if t.LockDir != "" {
		results = append(results, c.CheckReindexLock(t.LockDir))
	}
	if t.Current != nil && t.Probe != nil {
		results = append(results, c.CheckCurrentIndex(ctx, t.Current, t.Probe, t.Prefix))
	}
	return results
}

// HasCriticalFailures returns true if any required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus returns a summary status string for the results.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	hasWarnings := false
	hasCriticalFailure := false

	for _, r := range results {
		if r.IsCritical() {
			hasCriticalFailure = true
		}
		if r.Status == StatusWarn || (r.Status == StatusFail && !r.Required) {
			hasWarnings = true
		}
	}

	if hasCriticalFailure {
		return "failed"
	}
	if hasWarnings {
		return "ready_with_warnings"
	}
	return "ready"
}

// PrintResults prints check results to the configured output.
func (c *Checker) PrintResults(results []CheckResult) {
	_, _ = fmt.Fprintln(c.output, "wikisearch system check")
	_, _ = fmt.Fprintln(c.output, "=======================")
	_, _ = fmt.Fprintln(c.output)

	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(c.output, "      %s\n", r.Details)
		}
	}

	_, _ = fmt.Fprintln(c.output)
	_, _ = fmt.Fprintf(c.output, "Status: %s\n", strings.ToUpper(c.SummaryStatus(results)))

	var errs []string
	for _, r := range results {
		if r.IsCritical() {
			errs = append(errs, r.Name+": "+r.Message)
		}
	}
	if len(errs) > 0 {
		_, _ = fmt.Fprintln(c.output)
		_, _ = fmt.Fprintf(c.output, "%d error(s):\n", len(errs))
		for _, e := range errs {
			_, _ = fmt.Fprintf(c.output, "  - %s\n", e)
		}
	}
}

// CheckWritePermissions creates dir when missing and checks it is writable.
func (c *Checker) CheckWritePermissions(dir string) CheckResult {
	result := CheckResult{
		Name:     "data_dir",
		Required: true,
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot create %s: %v", dir, err)
		return result
	}
	f, err := os.CreateTemp(dir, ".wikisearch-preflight-*")
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("permission denied: %v", err)
		return result
	}
	_ = f.Close()
	_ = os.Remove(f.Name())

	result.Status = StatusPass
	result.Message = dir
	return result
}

// CheckReindexLock warns when another process holds the rebuild lock.
func (c *Checker) CheckReindexLock(lockDir string) CheckResult {
	result := CheckResult{Name: "reindex_lock"}

	guard := async.NewFileGuard(lockDir, async.JobReindex)
	ok, err := guard.TryLock()
	if err != nil {
		result.Status = StatusWarn
		result.Message = err.Error()
		return result
	}
	if !ok {
		result.Status = StatusWarn
		result.Message = "a rebuild is running in another process"
		result.Details = guard.Path()
		return result
	}
	_ = guard.Unlock()

	result.Status = StatusPass
	result.Message = "no rebuild running"
	return result
}

// CheckCurrentIndex warns when the current generation's physical index is
// missing, which happens when index files are removed by hand.
func (c *Checker) CheckCurrentIndex(ctx context.Context, current CurrentIndex, probe IndexProbe, prefix string) CheckResult {
	result := CheckResult{Name: "current_index"}

	gen, err := current.CurrentGeneration(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to read generations: %v", err)
		return result
	}
	if gen == nil {
		result.Status = StatusWarn
		result.Message = "no current generation"
		result.Details = "the default generation is created on first use"
		return result
	}

	name := gen.PrefixedName(prefix)
	ok, err := probe.IndexExists(ctx, name)
	switch {
	case err != nil:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", name, err)
	case !ok:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("%s is missing", name)
		result.Details = "run 'wikisearch reindex --in-place' to rebuild it"
	default:
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s (generation %s)", name, gen.Name)
	}
	return result
}
