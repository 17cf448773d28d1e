// Package mcpserver exposes worklog queries as MCP tools over stdio.
// Each tool proxies to the running daemon through the Unix socket, so
// an AI assistant sees the same data the CLI does.
package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/anthropic/worklog/internal/daemon"
	"github.com/anthropic/worklog/internal/goal"
	"github.com/anthropic/worklog/internal/ipc"
	"github.com/anthropic/worklog/internal/report"
	"github.com/anthropic/worklog/internal/stats"
)

const serverVersion = "1.0.0"

// ListSessionsArgs filters the session list.
type ListSessionsArgs struct {
	ProjectID  string `json:"project_id,omitempty" jsonschema:"description=Only sessions belonging to this project id"`
	ActiveOnly bool   `json:"active_only,omitempty" jsonschema:"description=Only sessions currently active"`
}

// GoalStatusArgs selects the session whose goal to report.
type GoalStatusArgs struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"description=Session id; empty means the active session"`
}

// SummaryArgs shapes the generated summary.
type SummaryArgs struct {
	Timeframe    string `json:"timeframe,omitempty" jsonschema:"description=Summary window: daily (default), weekly, or monthly"`
	Instructions string `json:"instructions,omitempty" jsonschema:"description=Extra instructions for the summary writer"`
}

// Serve registers the worklog tools and serves MCP on stdio until the
// client disconnects. The daemon must already be listening on socketPath.
func Serve(socketPath string) error {
	client := ipc.NewClient(socketPath)
	if err := client.Ping(); err != nil {
		return fmt.Errorf("daemon not reachable at %s (run `worklog start` first): %w", socketPath, err)
	}

	s := server.NewMCPServer("worklog", serverVersion,
		server.WithToolCapabilities(false),
	)
	registerTools(s, client)
	return server.ServeStdio(s)
}

func registerTools(s *server.MCPServer, client *ipc.Client) {
	s.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription(`List tracked AI coding sessions, newest first.

Each session includes its project, platform, prompt count, goal progress,
and activity timestamps. Filter with project_id or active_only.`),
		mcp.WithInputSchema[ListSessionsArgs](),
	), wrapListSessions(client))

	s.AddTool(mcp.NewTool("daily_stats",
		mcp.WithDescription(`Today's coding stats: prompt count, session count, coding minutes,
prompt quality scores, and the comparison against the 30-day typical day.`),
	), wrapDailyStats(client))

	s.AddTool(mcp.NewTool("goal_status",
		mcp.WithDescription(`Goal and progress for a session. With no session_id the active
session is used. Reports the goal text, percent complete, completion
state, and prompts spent since the goal was set.`),
		mcp.WithInputSchema[GoalStatusArgs](),
	), wrapGoalStatus(client))

	s.AddTool(mcp.NewTool("generate_summary",
		mcp.WithDescription(`Generate a work summary for a timeframe (daily, weekly, or monthly).

The daemon aggregates the window's sessions and asks its configured
language model for a narrative with accomplishments, suggested focus,
and insights. Without a model a factual fallback is returned instead;
the response marks that case.`),
		mcp.WithInputSchema[SummaryArgs](),
	), wrapSummary(client))
}

func wrapListSessions(client *ipc.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args ListSessionsArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		req := ipc.Request{Command: ipc.CmdSessions, Args: map[string]string{}}
		if args.ProjectID != "" {
			req.Args[ipc.ArgProjectID] = args.ProjectID
		}
		if args.ActiveOnly {
			req.Args[ipc.ArgActiveOnly] = "true"
		}

		var sessions []daemon.SessionView
		if err := client.Call(req, &sessions); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(report.FormatJSON(sessions)), nil
	}
}

func wrapDailyStats(client *ipc.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var daily stats.DailyStats
		if err := client.Call(ipc.Request{Command: ipc.CmdStats}, &daily); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(report.FormatJSON(&daily)), nil
	}
}

func wrapGoalStatus(client *ipc.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args GoalStatusArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		req := ipc.Request{Command: ipc.CmdGoalStatus, Args: map[string]string{}}
		if args.SessionID != "" {
			req.Args[ipc.ArgSessionID] = args.SessionID
		}

		var status goal.Status
		if err := client.Call(req, &status); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(report.FormatJSON(&status)), nil
	}
}

func wrapSummary(client *ipc.Client) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args SummaryArgs
		if err := request.BindArguments(&args); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		timeframe := args.Timeframe
		if timeframe == "" {
			timeframe = "daily"
		}
		req := ipc.Request{Command: ipc.CmdSummary, Args: map[string]string{
			ipc.ArgTimeframe: timeframe,
		}}
		if args.Instructions != "" {
			req.Args[ipc.ArgInstructions] = args.Instructions
		}

		var out map[string]any
		if err := client.Call(req, &out); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(report.FormatJSON(out)), nil
	}
}
