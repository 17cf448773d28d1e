package main

import (
	"fmt"
	"log"
	"os"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/anthropic/worklog/internal/config"
	"github.com/anthropic/worklog/internal/daemon"
	"github.com/anthropic/worklog/internal/goal"
	"github.com/anthropic/worklog/internal/ipc"
	"github.com/anthropic/worklog/internal/mcpserver"
	"github.com/anthropic/worklog/internal/report"
	"github.com/anthropic/worklog/internal/stats"
	"github.com/anthropic/worklog/internal/summary"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "worklog",
		Short: "Track and summarize AI-assisted coding sessions",
		Long:  "worklog is a daemon that tracks your AI-assisted coding sessions across editors and produces goal tracking, daily stats, and work summaries.",
	}

	rootCmd.AddCommand(startCmd())
	rootCmd.AddCommand(stopCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(pingCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(goalCmd())
	rootCmd.AddCommand(summaryCmd())
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func startCmd() *cobra.Command {
	var foreground bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the worklog daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client := ipc.NewClient(cfg.SocketPath)
			if err := client.Ping(); err == nil {
				fmt.Println("daemon is already running")
				return nil
			}

			// Remove stale socket file (from a prior crash).
			if _, err := os.Stat(cfg.SocketPath); err == nil {
				log.Println("removing stale socket file")
				_ = os.Remove(cfg.SocketPath)
			}

			if !foreground {
				fmt.Println("hint: use --foreground to run in the current terminal")
				fmt.Println("background daemonization not yet implemented, running in foreground")
			}

			d := daemon.New(cfg, nil)
			return d.Start()
		},
	}

	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in the foreground (don't daemonize)")
	return cmd
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the worklog daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ipc.NewClient(cfg.SocketPath).RequestStop(); err != nil {
				return fmt.Errorf("stop daemon: %w", err)
			}
			fmt.Println("daemon stopping")
			return nil
		},
	}
}

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if daemon is alive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := ipc.NewClient(cfg.SocketPath).Ping(); err != nil {
				fmt.Println("daemon is not running")
				return err
			}
			fmt.Println("daemon is alive")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			status, err := ipc.NewClient(cfg.SocketPath).Status()
			if err != nil {
				return fmt.Errorf("daemon not running or unreachable: %w", err)
			}
			return emit(format, status, report.FormatStatus(status))
		},
	}

	addFormatFlag(cmd, &format)
	return cmd
}

func sessionsCmd() *cobra.Command {
	var (
		format     string
		projectID  string
		activeOnly bool
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List tracked sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req := ipc.Request{Command: ipc.CmdSessions, Args: map[string]string{}}
			if projectID != "" {
				req.Args[ipc.ArgProjectID] = projectID
			}
			if activeOnly {
				req.Args[ipc.ArgActiveOnly] = "true"
			}

			var sessions []daemon.SessionView
			if err := ipc.NewClient(cfg.SocketPath).Call(req, &sessions); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return emit(format, sessions, report.FormatSessions(sessions))
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Filter by project id")
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only active sessions")
	addFormatFlag(cmd, &format)
	return cmd
}

func statsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show today's coding stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var daily stats.DailyStats
			if err := ipc.NewClient(cfg.SocketPath).Call(ipc.Request{Command: ipc.CmdStats}, &daily); err != nil {
				return fmt.Errorf("fetch stats: %w", err)
			}
			return emit(format, &daily, report.FormatDailyStats(&daily))
		},
	}

	addFormatFlag(cmd, &format)
	return cmd
}

func goalCmd() *cobra.Command {
	var (
		format    string
		sessionID string
	)

	cmd := &cobra.Command{
		Use:   "goal",
		Short: "Show the active session's goal and progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req := ipc.Request{Command: ipc.CmdGoalStatus, Args: map[string]string{}}
			if sessionID != "" {
				req.Args[ipc.ArgSessionID] = sessionID
			}

			var status goal.Status
			if err := ipc.NewClient(cfg.SocketPath).Call(req, &status); err != nil {
				return fmt.Errorf("fetch goal status: %w", err)
			}
			return emit(format, &status, report.FormatGoalStatus(&status))
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Session id (default: active session)")
	addFormatFlag(cmd, &format)
	return cmd
}

func summaryCmd() *cobra.Command {
	var (
		format       string
		timeframe    string
		instructions string
		copyToClip   bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Generate a work summary",
		Long: `Generate an AI-written summary of tracked work.

The daemon aggregates the window's activity and asks the configured
language model for a narrative; without a model a factual fallback
summary is produced instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			req := ipc.Request{Command: ipc.CmdSummary, Args: map[string]string{
				ipc.ArgTimeframe: timeframe,
			}}
			if instructions != "" {
				req.Args[ipc.ArgInstructions] = instructions
			}
			client := ipc.NewClient(cfg.SocketPath)

			var (
				data any
				text string
			)
			switch summary.Timeframe(timeframe) {
			case summary.Weekly:
				var r summary.WeeklyReport
				if err := client.Call(req, &r); err != nil {
					return fmt.Errorf("generate summary: %w", err)
				}
				data, text = &r, report.FormatWeeklyReport(&r)
			case summary.Monthly:
				var r summary.MonthlyReport
				if err := client.Call(req, &r); err != nil {
					return fmt.Errorf("generate summary: %w", err)
				}
				data, text = &r, report.FormatMonthlyReport(&r)
			default:
				var r summary.DailyReport
				if err := client.Call(req, &r); err != nil {
					return fmt.Errorf("generate summary: %w", err)
				}
				data, text = &r, report.FormatDailyReport(&r)
			}

			if copyToClip {
				if err := clipboard.WriteAll(text); err != nil {
					log.Printf("copy to clipboard failed: %v", err)
				} else {
					fmt.Println("summary copied to clipboard")
				}
			}
			return emit(format, data, text)
		},
	}

	cmd.Flags().StringVar(&timeframe, "timeframe", "daily", "Summary window: daily, weekly, or monthly")
	cmd.Flags().StringVar(&instructions, "instructions", "", "Extra instructions for the summary writer")
	cmd.Flags().BoolVar(&copyToClip, "copy", false, "Copy the rendered summary to the clipboard")
	addFormatFlag(cmd, &format)
	return cmd
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve worklog tools over MCP on stdio",
		Long:  "Expose session, stats, goal, and summary queries as MCP tools for AI assistants. The daemon must be running.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return mcpserver.Serve(cfg.SocketPath)
		},
	}
}

func addFormatFlag(cmd *cobra.Command, format *string) {
	cmd.Flags().StringVar(format, "format", "text", "Output format: text, json, or yaml")
}

// emit writes the result in the chosen format.
func emit(format string, data any, text string) error {
	switch format {
	case "json":
		fmt.Println(report.FormatJSON(data))
	case "yaml":
		fmt.Print(report.FormatYAML(data))
	case "text", "":
		fmt.Print(text)
	default:
		return fmt.Errorf("unknown format %q (want text, json, or yaml)", format)
	}
	return nil
}
