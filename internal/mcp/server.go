package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/logging"
	"github.com/Aman-CERP/wikisearch/internal/reindex"
	"github.com/Aman-CERP/wikisearch/internal/search"
	"github.com/Aman-CERP/wikisearch/internal/store"
	"github.com/Aman-CERP/wikisearch/internal/telemetry"
	"github.com/Aman-CERP/wikisearch/pkg/version"
)

// Searcher runs queries against the current generation.
type Searcher interface {
	Search(ctx context.Context, q search.Query) (*search.Result, error)
}

// Generations resolves and lists index generations.
type Generations interface {
	Current(ctx context.Context) (*store.Generation, error)
	List(ctx context.Context) ([]*store.Generation, error)
	IndexName(gen *store.Generation) string
}

// DocCounter reports the number of documents in a physical index.
type DocCounter interface {
	DocCount(ctx context.Context, name string) (uint64, error)
}

// OutdatedCounter reports pending outdated records of a generation.
type OutdatedCounter interface {
	CountOutdated(ctx context.Context, generationID int64) (int, error)
}

// Jobs is the background job queue.
type Jobs interface {
	Submit(jobType string, fn async.RunFunc) (string, error)
	Status(id string) (async.JobSnapshot, bool)
	Latest(jobType string) (async.JobSnapshot, bool)
}

// QueryStats exposes the search statistics of this process.
type QueryStats interface {
	Snapshot() *telemetry.Snapshot
}

// ReindexTask builds the queue task of a rebuild.
type ReindexTask func(opts reindex.Options) async.RunFunc

// Dependencies are the collaborators of a Server. Searcher and Generations
// are required. Without Jobs and Reindex the rebuild tools are not offered.
type Dependencies struct {
	Searcher    Searcher
	Generations Generations
	Docs        DocCounter
	Outdated    OutdatedCounter
	Filters     store.FilterStore
	Jobs        Jobs
	Reindex     ReindexTask
	Stats       QueryStats
	Logger      *slog.Logger
}

// Server is the MCP server for wiki search.
type Server struct {
	mcp    *mcp.Server
	deps   Dependencies
	logger *slog.Logger
	tools  []string
}

// NewServer creates a new MCP server.
func NewServer(deps Dependencies) (*Server, error) {
	if deps.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if deps.Generations == nil {
		return nil, errors.New("generations are required")
	}

	s := &Server{
		deps:   deps,
		logger: logging.Default(deps.Logger).With("component", "mcp"),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "wikisearch",
			Version: version.Version,
		},
		nil, // capabilities are inferred from registered tools/resources
	)

	s.registerTools()
	s.registerResources()

	return s, nil
}

// Tools returns the names of the registered tools.
func (s *Server) Tools() []string {
	return append([]string(nil), s.tools...)
}

func (s *Server) registerTools() {
	s.logger.Debug("mcp_tools_registering")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search",
		Description: "Search wiki documents by free text, narrowed by facet filters and locale. Returns ranked documents with highlighted excerpts and per-filter counts.",
	}, s.mcpSearchHandler)
	s.tools = append(s.tools, "search")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "index_status",
		Description: "Show the generation currently serving searches, its document count, all generations with their lifecycle state, and the latest rebuild.",
	}, s.mcpIndexStatusHandler)
	s.tools = append(s.tools, "index_status")

	if s.deps.Jobs != nil && s.deps.Reindex != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "start_reindex",
			Description: "Queue a full rebuild into a new generation, an existing unpromoted one, or the current one in place. Only one rebuild runs at a time.",
		}, s.mcpStartReindexHandler)
		s.tools = append(s.tools, "start_reindex")

		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        "reindex_status",
			Description: "Report progress of a rebuild started with start_reindex, or of the latest one.",
		}, s.mcpReindexStatusHandler)
		s.tools = append(s.tools, "reindex_status")
	}

	s.logger.Info("mcp_tools_registered", slog.Int("count", len(s.tools)))
}

// mcpSearchHandler is the MCP SDK handler for the search tool.
func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchInput) (
	*mcp.CallToolResult,
	SearchOutput,
	error,
) {
	requestID := generateRequestID()
	start := time.Now()

	query := strings.TrimSpace(input.Query)
	if query == "" && len(input.Facets) == 0 {
		return nil, SearchOutput{}, NewInvalidParamsError("query or facets parameter is required")
	}

	s.logger.Debug("search_started",
		slog.String("request_id", requestID),
		slog.String("query", query),
		slog.String("locale", input.Locale))

	res, err := s.deps.Searcher.Search(ctx, search.Query{
		Text:    query,
		Facets:  input.Facets,
		Locale:  input.Locale,
		Page:    input.Page,
		PerPage: input.PerPage,
	})
	if err != nil {
		s.logger.Warn("search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, SearchOutput{}, MapError(err)
	}

	output := SearchOutput{
		Total:      res.Total,
		Page:       res.Page,
		PerPage:    res.PerPage,
		Generation: res.Generation,
		Results:    res.Hits,
		Facets:     res.Facets,
	}
	// The output schema does not admit null arrays.
	if output.Results == nil {
		output.Results = []search.Hit{}
	}
	if output.Facets == nil {
		output.Facets = []search.FacetGroup{}
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Uint64("total", res.Total),
		slog.Duration("duration", time.Since(start)))

	return textResult(FormatSearchResults(query, res)), output, nil
}

// mcpIndexStatusHandler is the MCP SDK handler for the index_status tool.
func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	output, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, MapError(err)
	}
	return nil, output, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	current, err := s.deps.Generations.Current(ctx)
	if err != nil {
		return nil, err
	}
	gens, err := s.deps.Generations.List(ctx)
	if err != nil {
		return nil, err
	}

	output := &IndexStatusOutput{Generations: make([]GenerationInfo, 0, len(gens))}
	for _, g := range gens {
		info, err := s.generationInfo(ctx, g, current)
		if err != nil {
			return nil, err
		}
		output.Generations = append(output.Generations, info)
		if info.Current {
			output.Current = info
		}
	}
	if output.Current.Name == "" {
		// The current generation was created after List ran.
		output.Current, err = s.generationInfo(ctx, current, current)
		if err != nil {
			return nil, err
		}
	}

	if s.deps.Docs != nil {
		n, err := s.deps.Docs.DocCount(ctx, output.Current.Index)
		if err != nil {
			// Degrade: report what the metadata store knows.
			s.logger.Warn("doc_count_unavailable",
				slog.String("index", output.Current.Index),
				slog.String("error", err.Error()))
		} else {
			output.DocCount = n
		}
	}

	if s.deps.Jobs != nil {
		if snap, ok := s.deps.Jobs.Latest(async.JobReindex); ok {
			output.Reindex = &snap
		}
	}
	return output, nil
}

func (s *Server) generationInfo(ctx context.Context, g, current *store.Generation) (GenerationInfo, error) {
	info := GenerationInfo{
		ID:        g.ID,
		Name:      g.Name,
		Index:     s.deps.Generations.IndexName(g),
		State:     string(g.State()),
		Current:   current != nil && g.ID == current.ID,
		CreatedAt: g.CreatedAt,
	}
	if s.deps.Outdated != nil {
		n, err := s.deps.Outdated.CountOutdated(ctx, g.ID)
		if err != nil {
			return GenerationInfo{}, err
		}
		info.Outdated = n
	}
	return info, nil
}

// mcpStartReindexHandler is the MCP SDK handler for the start_reindex tool.
func (s *Server) mcpStartReindexHandler(_ context.Context, _ *mcp.CallToolRequest, input StartReindexInput) (
	*mcp.CallToolResult,
	StartReindexOutput,
	error,
) {
	if input.Percent < 0 || input.Percent > 100 {
		return nil, StartReindexOutput{}, NewInvalidParamsError(
			fmt.Sprintf("percent must be between 0 and 100, got %d", input.Percent))
	}
	if input.InPlace && input.Generation != 0 {
		return nil, StartReindexOutput{}, NewInvalidParamsError("in_place and generation cannot be combined")
	}
	if input.ChunkSize < 0 {
		return nil, StartReindexOutput{}, NewInvalidParamsError("chunk_size must not be negative")
	}

	opts := reindex.Options{
		GenerationID: input.Generation,
		InPlace:      input.InPlace,
		ChunkSize:    input.ChunkSize,
		Percent:      input.Percent,
	}
	id, err := s.deps.Jobs.Submit(async.JobReindex, s.deps.Reindex(opts))
	if err != nil {
		return nil, StartReindexOutput{}, MapError(err)
	}

	s.logger.Info("reindex_queued",
		slog.String("job", id),
		slog.Int("percent", input.Percent),
		slog.Bool("in_place", input.InPlace))

	output := StartReindexOutput{JobID: id, Status: string(async.StatusQueued)}
	if snap, ok := s.deps.Jobs.Status(id); ok {
		output.Status = snap.Status
	}
	return nil, output, nil
}

// mcpReindexStatusHandler is the MCP SDK handler for the reindex_status tool.
func (s *Server) mcpReindexStatusHandler(_ context.Context, _ *mcp.CallToolRequest, input ReindexStatusInput) (
	*mcp.CallToolResult,
	async.JobSnapshot,
	error,
) {
	var (
		snap async.JobSnapshot
		ok   bool
	)
	if input.JobID != "" {
		snap, ok = s.deps.Jobs.Status(input.JobID)
	} else {
		snap, ok = s.deps.Jobs.Latest(async.JobReindex)
	}
	if !ok {
		msg := "no rebuild has been started"
		if input.JobID != "" {
			msg = fmt.Sprintf("job %s not found", input.JobID)
		}
		return nil, async.JobSnapshot{}, &MCPError{Code: ErrCodeJobNotFound, Message: msg}
	}
	return textResult(FormatJob(snap)), snap, nil
}

// Serve starts the server with the specified transport. addr is used by
// the http transport only.
func (s *Server) Serve(ctx context.Context, transport, addr string) error {
	s.logger.Info("mcp_server_starting",
		slog.String("transport", transport),
		slog.String("addr", addr))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed",
				slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	case "http":
		return s.serveHTTP(ctx, addr)
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio, http)", transport)
	}
}

func (s *Server) serveHTTP(ctx context.Context, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return s.mcp }, nil)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
