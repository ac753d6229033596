package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/STRATINT/mentionwatch/internal/collector"
	"github.com/STRATINT/mentionwatch/internal/models"
	"github.com/STRATINT/mentionwatch/internal/scheduler"
)

const (
	serverName = "mentionwatch"

	// EndpointPath is where the streamable HTTP transport is mounted.
	EndpointPath = "/mcp"

	ToolCollectorStatus   = "collector_status"
	ToolTriggerCollection = "trigger_collection"
	ToolRecentRuns        = "recent_runs"
	ToolRecentMentions    = "recent_mentions"
	ToolGetMention        = "get_mention"

	defaultRecentRuns = 10
	maxRecentRuns     = 100

	defaultMentionHours = 24
	maxMentionHours     = 7 * 24
	defaultMentions     = 20
	maxMentions         = 100
)

// Service is the collector surface the tools expose. *collector.Service
// implements it.
type Service interface {
	Overview(ctx context.Context) (collector.Overview, error)
	RecentRuns(ctx context.Context, limit int) ([]models.RunReport, error)
	RecentMentions(ctx context.Context, period time.Duration, limit int) ([]models.MentionSnapshot, error)
	Mention(ctx context.Context, postID string) (*models.MentionSnapshot, error)
	Trigger(source string) bool
}

type tools struct {
	svc    Service
	logger *slog.Logger
}

// NewServer builds an MCP server exposing the collector tools.
func NewServer(svc Service, version string, logger *slog.Logger) *server.MCPServer {
	t := &tools{svc: svc, logger: logger.With("component", "mcp")}

	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	s.AddTool(mcp.NewTool(ToolCollectorStatus,
		mcp.WithDescription("Report the mention collector state: tracked handle, whether a run is active, the next scheduled run, the last run report, the search rate budget and the number of stored snapshots."),
	), t.collectorStatus)

	s.AddTool(mcp.NewTool(ToolTriggerCollection,
		mcp.WithDescription("Start a collection run for the trailing day now. Refused while another run is active or after the collector halted on a fatal error."),
	), t.triggerCollection)

	s.AddTool(mcp.NewTool(ToolRecentRuns,
		mcp.WithDescription("List the most recent collection runs with their window, status and item counts, newest first."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of runs to return (default 10, at most 100)."),
		),
	), t.recentRuns)

	s.AddTool(mcp.NewTool(ToolRecentMentions,
		mcp.WithDescription("List stored mentions of the tracked handle authored in the last hours, newest first, with author and engagement metrics."),
		mcp.WithNumber("hours",
			mcp.Description("Look-back period in hours (default 24, at most 168)."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of mentions to return (default 20, at most 100)."),
		),
	), t.recentMentions)

	s.AddTool(mcp.NewTool(ToolGetMention,
		mcp.WithDescription("Look up one stored mention by its post id."),
		mcp.WithString("post_id",
			mcp.Required(),
			mcp.Description("The X post id of the mention."),
		),
	), t.getMention)

	return s
}

// NewHandler serves s over the stateless streamable HTTP transport.
func NewHandler(s *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(
		s,
		server.WithEndpointPath(EndpointPath),
		server.WithStateLess(true),
	)
}

func (t *tools) collectorStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	overview, err := t.svc.Overview(ctx)
	if err != nil {
		t.logger.Error("collector status failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.MarshalIndent(overview, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (t *tools) recentRuns(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := boundedArg(request.GetInt("limit", defaultRecentRuns), defaultRecentRuns, maxRecentRuns)

	runs, err := t.svc.RecentRuns(ctx, limit)
	if err != nil {
		t.logger.Error("recent runs failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (t *tools) recentMentions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hours := boundedArg(request.GetInt("hours", defaultMentionHours), defaultMentionHours, maxMentionHours)
	limit := boundedArg(request.GetInt("limit", defaultMentions), defaultMentions, maxMentions)

	mentions, err := t.svc.RecentMentions(ctx, time.Duration(hours)*time.Hour, limit)
	if err != nil {
		t.logger.Error("recent mentions failed", "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}

	payload, err := json.MarshalIndent(mentions, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (t *tools) getMention(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	postID := request.GetString("post_id", "")
	if postID == "" {
		return mcp.NewToolResultError("post_id is required"), nil
	}

	snap, err := t.svc.Mention(ctx, postID)
	if err != nil {
		t.logger.Error("get mention failed", "post_id", postID, "error", err)
		return mcp.NewToolResultError(err.Error()), nil
	}
	if snap == nil {
		return mcp.NewToolResultError(fmt.Sprintf("mention %s has not been collected", postID)), nil
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// boundedArg replaces non-positive values with fallback and caps at max.
func boundedArg(n, fallback, max int) int {
	if n < 1 {
		return fallback
	}
	return min(n, max)
}

func (t *tools) triggerCollection(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if !t.svc.Trigger(scheduler.SourceMCP) {
		return mcp.NewToolResultError("collection not started: a run is already active or the collector has halted"), nil
	}
	t.logger.Info("collection triggered via MCP")
	return mcp.NewToolResultText("collection run started"), nil
}
