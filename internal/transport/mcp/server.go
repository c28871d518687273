package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	stdlog "log"
	"os"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sandevgo/tuskmem/pkg/log"
)

const (
	defaultSearchLimit  = 5
	defaultEpisodeLimit = 5
)

type SemanticStore interface {
	Store(ctx context.Context, content string, memType core.MemoryType, source string, importance float64) (string, error)
	Search(ctx context.Context, query string, limit int, minScore float64) ([]core.ScoredMemory, error)
	Delete(ctx context.Context, id string) (bool, error)
}

type EpisodeLog interface {
	GetRecent(ctx context.Context, limit int) ([]core.Episode, error)
	SearchEpisodes(ctx context.Context, query string, limit int) ([]core.Episode, error)
	GetLessons(ctx context.Context) ([]string, error)
}

type Maintainer interface {
	Maintenance(ctx context.Context) core.MaintenanceReport
}

// Server exposes the memory stores as MCP tools over stdio.
type Server struct {
	semantic SemanticStore
	episodes EpisodeLog
	memory   Maintainer

	mcp  *server.MCPServer
	in   io.Reader
	out  io.Writer
	done chan struct{}
}

func NewServer(semantic SemanticStore, episodes EpisodeLog, memory Maintainer) *Server {
	s := &Server{
		semantic: semantic,
		episodes: episodes,
		memory:   memory,
		in:       os.Stdin,
		out:      os.Stdout,
		done:     make(chan struct{}),
	}

	s.mcp = server.NewMCPServer(
		core.TuskName,
		core.TuskVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, mostly for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcpgo.NewTool("memory_store",
		mcpgo.WithDescription("Store a long-term memory. Storing identical content again replaces the old record."),
		mcpgo.WithString("content", mcpgo.Required(), mcpgo.Description("Text of the memory")),
		mcpgo.WithString("type",
			mcpgo.Description("Kind of memory"),
			mcpgo.Enum(string(core.MemoryFact), string(core.MemoryPreference), string(core.MemoryProcedure), string(core.MemoryNote)),
		),
		mcpgo.WithNumber("importance", mcpgo.Description("Importance within [0,1], default 0.5")),
		mcpgo.WithString("source", mcpgo.Description("Where the memory came from, default manual")),
	), s.handleMemoryStore)

	s.mcp.AddTool(mcpgo.NewTool("memory_search",
		mcpgo.WithDescription("Search long-term memories by meaning. Hits are ranked by similarity and importance."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Natural language query")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of hits, default 5")),
		mcpgo.WithNumber("min_score", mcpgo.Description("Minimum blended score, default 0")),
	), s.handleMemorySearch)

	s.mcp.AddTool(mcpgo.NewTool("memory_delete",
		mcpgo.WithDescription("Delete a long-term memory by id."),
		mcpgo.WithString("id", mcpgo.Required(), mcpgo.Description("Memory id returned by memory_store")),
	), s.handleMemoryDelete)

	s.mcp.AddTool(mcpgo.NewTool("episode_search",
		mcpgo.WithDescription("Find past sessions whose summary, goal or topics mention the query keywords."),
		mcpgo.WithString("query", mcpgo.Required(), mcpgo.Description("Keywords to look for")),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of episodes, default 5")),
	), s.handleEpisodeSearch)

	s.mcp.AddTool(mcpgo.NewTool("episode_recent",
		mcpgo.WithDescription("List the most recently finished sessions."),
		mcpgo.WithNumber("limit", mcpgo.Description("Maximum number of episodes, default 5")),
	), s.handleEpisodeRecent)

	s.mcp.AddTool(mcpgo.NewTool("episode_lessons",
		mcpgo.WithDescription("List every distinct lesson learned across past sessions."),
	), s.handleEpisodeLessons)

	s.mcp.AddTool(mcpgo.NewTool("memory_maintenance",
		mcpgo.WithDescription("Decay stale memories and prune old episodes now."),
	), s.handleMaintenance)
}

func (s *Server) handleMemoryStore(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	memType, err := core.ParseMemoryType(req.GetString("type", string(core.MemoryNote)))
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	id, err := s.semantic.Store(ctx, content, memType,
		req.GetString("source", core.SourceManual),
		req.GetFloat("importance", 0.5),
	)
	if err != nil {
		return toolError(err)
	}
	return mcpgo.NewToolResultText(id), nil
}

func (s *Server) handleMemorySearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	hits, err := s.semantic.Search(ctx, query,
		req.GetInt("limit", defaultSearchLimit),
		req.GetFloat("min_score", 0),
	)
	if err != nil {
		return toolError(err)
	}
	return jsonResult(hits)
}

func (s *Server) handleMemoryDelete(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	deleted, err := s.semantic.Delete(ctx, id)
	if err != nil {
		return toolError(err)
	}
	if !deleted {
		return mcpgo.NewToolResultError(fmt.Sprintf("memory %s not found", id)), nil
	}
	return mcpgo.NewToolResultText("deleted " + id), nil
}

func (s *Server) handleEpisodeSearch(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcpgo.NewToolResultError(err.Error()), nil
	}

	episodes, err := s.episodes.SearchEpisodes(ctx, query, req.GetInt("limit", defaultEpisodeLimit))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(episodeViews(episodes))
}

func (s *Server) handleEpisodeRecent(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	episodes, err := s.episodes.GetRecent(ctx, req.GetInt("limit", defaultEpisodeLimit))
	if err != nil {
		return toolError(err)
	}
	return jsonResult(episodeViews(episodes))
}

func (s *Server) handleEpisodeLessons(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	lessons, err := s.episodes.GetLessons(ctx)
	if err != nil {
		return toolError(err)
	}
	if lessons == nil {
		lessons = []string{}
	}
	return jsonResult(lessons)
}

func (s *Server) handleMaintenance(ctx context.Context, _ mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
	report := s.memory.Maintenance(ctx)

	errs := make([]string, 0, len(report.Errors))
	for _, err := range report.Errors {
		errs = append(errs, err.Error())
	}
	return jsonResult(struct {
		MemoriesRemoved int      `json:"memories_removed"`
		EpisodesPruned  int      `json:"episodes_pruned"`
		Errors          []string `json:"errors"`
	}{report.MemoriesRemoved, report.EpisodesPruned, errs})
}

// Start serves stdio until ctx is cancelled or the peer closes stdin.
func (s *Server) Start(ctx context.Context) error {
	defer close(s.done)
	ctx = log.WithComponent(ctx, "mcp")
	logger := log.FromCtx(ctx)
	logger.Info().Msg("starting MCP stdio server")

	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(stdlog.New(logger, "", 0))

	err := stdio.Listen(ctx, s.in, s.out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp stdio: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}

// Done is closed once Start returns.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// episodeView drops raw turns, which are large and of no use to a caller.
type episodeView struct {
	ID        string   `json:"id"`
	SessionID string   `json:"session_id"`
	Summary   string   `json:"summary"`
	UserGoal  string   `json:"user_goal"`
	Outcome   string   `json:"outcome"`
	EndedAt   string   `json:"ended_at"`
	ToolsUsed []string `json:"tools_used"`
	Topics    []string `json:"topics"`
	Lessons   []string `json:"lessons"`
}

func episodeViews(episodes []core.Episode) []episodeView {
	views := make([]episodeView, 0, len(episodes))
	for _, ep := range episodes {
		views = append(views, episodeView{
			ID:        ep.ID,
			SessionID: ep.SessionID,
			Summary:   ep.Summary,
			UserGoal:  ep.UserGoal,
			Outcome:   string(ep.Outcome),
			EndedAt:   ep.EndedAt.Format("2006-01-02 15:04"),
			ToolsUsed: ep.ToolsUsed,
			Topics:    ep.Topics,
			Lessons:   ep.Lessons,
		})
	}
	return views
}

func jsonResult(v any) (*mcpgo.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcpgo.NewToolResultText(string(b)), nil
}

// toolError reports caller mistakes to the model and fails the call otherwise.
func toolError(err error) (*mcpgo.CallToolResult, error) {
	if errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrNotFound) {
		return mcpgo.NewToolResultError(err.Error()), nil
	}
	return nil, err
}
