// Package report renders IPC query results for the terminal: ANSI tables
// for humans, plus JSON and YAML for scripting.
package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anthropic/worklog/internal/daemon"
	"github.com/anthropic/worklog/internal/goal"
	"github.com/anthropic/worklog/internal/ipc"
	"github.com/anthropic/worklog/internal/stats"
	"github.com/anthropic/worklog/internal/summary"
)

// ANSI escape codes for terminal formatting.
const (
	bold   = "\033[1m"
	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	dim    = "\033[2m"
	reset  = "\033[0m"
)

// FormatStatus renders daemon StatusData as a table.
func FormatStatus(status *ipc.StatusData) string {
	var b strings.Builder

	b.WriteString(bold + "Worklog - Daemon Status" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Uptime:", status.Uptime))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "DB Size:", humanBytes(status.DBSizeBytes)))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Projects:", status.ProjectCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Sessions:", status.SessionCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Prompts:", status.PromptCount))
	if status.ActiveSessionID != "" {
		b.WriteString(fmt.Sprintf("%-20s %s\n", "Active Session:", status.ActiveSessionID))
	}
	if status.Provider != "" {
		b.WriteString(fmt.Sprintf("%-20s %s\n", "AI Provider:", status.Provider))
	}
	return b.String()
}

// FormatSessions renders the session list as a table, newest first.
func FormatSessions(sessions []daemon.SessionView) string {
	if len(sessions) == 0 {
		return "no sessions tracked yet\n"
	}

	var b strings.Builder
	b.WriteString(bold + "Worklog - Sessions" + reset + "\n")
	b.WriteString(strings.Repeat("=", 78) + "\n")
	b.WriteString(fmt.Sprintf("%-26s %-12s %7s %6s %-20s\n", "Session", "Platform", "Prompts", "Goal%", "Last Activity"))
	b.WriteString(strings.Repeat("-", 78) + "\n")

	for _, s := range sessions {
		name := s.Name
		if name == "" {
			name = s.ID
		}
		if len(name) > 25 {
			name = name[:22] + "..."
		}
		marker := " "
		if s.IsCurrent {
			marker = "*"
		}
		b.WriteString(fmt.Sprintf("%s%-25s %-12s %7d %5d%% %-20s\n",
			marker, name, s.Platform, s.PromptCount, s.GoalProgress, s.LastActivity))
	}
	return b.String()
}

// FormatDailyStats renders today's stats with the typical-day comparison.
func FormatDailyStats(d *stats.DailyStats) string {
	var b strings.Builder

	b.WriteString(bold + "Worklog - Today" + reset + "  " + dim + d.Date + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	b.WriteString(fmt.Sprintf("%-20s %d\n", "Prompts:", d.PromptCount))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Sessions:", d.SessionCount))
	b.WriteString(fmt.Sprintf("%-20s %d min\n", "Coding Time:", d.CodingMinutes))
	b.WriteString(fmt.Sprintf("%-20s %s%.1f%s\n", "Average Score:", colorForScore(d.AverageScore), d.AverageScore, reset))
	b.WriteString(fmt.Sprintf("%-20s %.1f / %.1f\n", "Best / Worst:", d.BestScore, d.WorstScore))

	if d.HistoricalAverage > 0 {
		sign := ""
		if d.DeltaVsTypical > 0 {
			sign = "+"
		}
		b.WriteString(fmt.Sprintf("%-20s %.1f (%s%.1f vs typical)\n", "30-day Average:", d.HistoricalAverage, sign, d.DeltaVsTypical))
	}
	return b.String()
}

// FormatGoalStatus renders the goal block for one session.
func FormatGoalStatus(g *goal.Status) string {
	var b strings.Builder

	b.WriteString(bold + "Worklog - Goal" + reset + "\n")
	b.WriteString(strings.Repeat("=", 40) + "\n\n")

	if !g.HasGoal {
		b.WriteString("no goal set for this session\n")
		return b.String()
	}

	b.WriteString(fmt.Sprintf("%-20s %s\n", "Goal:", g.Goal))
	b.WriteString(fmt.Sprintf("%-20s %s\n", "Progress:", progressBar(g.Progress)))
	b.WriteString(fmt.Sprintf("%-20s %d\n", "Prompts Since Set:", g.PromptsSinceGoalSet))
	if g.IsCompleted {
		b.WriteString(green + "goal completed" + reset + "\n")
	}
	return b.String()
}

// FormatDailyReport renders the daily summary narrative.
func FormatDailyReport(r *summary.DailyReport) string {
	var b strings.Builder
	b.WriteString(bold + "Worklog - Daily Summary" + reset + "  " + dim + r.Date + reset + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "%d prompts, %d files, %d min", r.TotalMessages, r.FilesTouched, r.CodingMinutes)
	if len(r.TopProjects) > 0 {
		fmt.Fprintf(&b, "  (%s)", strings.Join(r.TopProjects, ", "))
	}
	b.WriteString("\n\n")
	writeSummaryBody(&b, r.Summary)
	return b.String()
}

// FormatWeeklyReport renders the weekly summary with the day shape.
func FormatWeeklyReport(r *summary.WeeklyReport) string {
	var b strings.Builder
	b.WriteString(bold + "Worklog - Weekly Summary" + reset + "  " + dim + "week of " + r.WeekStart + reset + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, d := range r.Days {
		fmt.Fprintf(&b, "%-10s %s\n", d.Weekday, strings.Repeat("#", scaleBar(d.Messages)))
	}
	fmt.Fprintf(&b, "\n%d prompts, %d files, %d min total\n\n", r.TotalMessages, r.FilesTouched, r.CodingMinutes)
	writeSummaryBody(&b, r.Summary)
	return b.String()
}

// FormatMonthlyReport renders the monthly summary with week buckets.
func FormatMonthlyReport(r *summary.MonthlyReport) string {
	var b strings.Builder
	b.WriteString(bold + "Worklog - Monthly Summary" + reset + "  " + dim + r.Month + reset + "\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")

	for _, w := range r.Weeks {
		fmt.Fprintf(&b, "week %d     %s\n", w.WeekOfMonth, strings.Repeat("#", scaleBar(w.Messages)))
	}
	fmt.Fprintf(&b, "\n%d prompts over %d active days, %d min total\n\n", r.TotalMessages, r.ActiveDays, r.CodingMinutes)
	writeSummaryBody(&b, r.Summary)
	return b.String()
}

// writeSummaryBody renders the model-produced content shared by all
// timeframes, flagging fallback output.
func writeSummaryBody(b *strings.Builder, s *summary.Summary) {
	if s == nil || s.Content == nil {
		return
	}
	if s.Fallback {
		fmt.Fprintf(b, "%s(AI summary unavailable: %s. %s)%s\n\n", yellow, s.ErrorKind, s.Suggestion, reset)
	}

	if len(s.Content.ExecutiveSummary) > 0 {
		for _, line := range s.Content.ExecutiveSummary {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if len(s.Content.Accomplishments) > 0 {
		b.WriteString(bold + "Accomplishments" + reset + "\n")
		for _, a := range s.Content.Accomplishments {
			line := "  - " + a.Text
			if a.Project != "" {
				line += dim + " [" + a.Project + "]" + reset
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	if len(s.Content.SuggestedFocus) > 0 {
		b.WriteString(bold + "Suggested Focus" + reset + "\n")
		for _, f := range s.Content.SuggestedFocus {
			b.WriteString("  - " + f + "\n")
		}
		b.WriteString("\n")
	}
	if len(s.Content.Insights) > 0 {
		b.WriteString(bold + "Insights" + reset + "\n")
		for _, i := range s.Content.Insights {
			b.WriteString("  - " + i + "\n")
		}
	}
}

// FormatJSON marshals any value as indented JSON.
func FormatJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

// FormatYAML marshals any value as YAML.
func FormatYAML(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %q\n", err.Error())
	}
	return string(data)
}

// progressBar renders a 20-cell progress bar with the percentage.
func progressBar(pct int) string {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	filled := pct / 5
	return fmt.Sprintf("[%s%s] %d%%", strings.Repeat("#", filled), strings.Repeat(".", 20-filled), pct)
}

// scaleBar caps activity bars so a heavy day stays on one line.
func scaleBar(n int) int {
	if n > 40 {
		return 40
	}
	return n
}

// colorForScore colors a prompt score: >=7 green, >=4 yellow, else red.
func colorForScore(score float64) string {
	switch {
	case score >= 7:
		return green
	case score >= 4:
		return yellow
	default:
		return red
	}
}

// humanBytes formats bytes as KB/MB/GB.
func humanBytes(b int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
		gb = 1024 * mb
	)
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(gb))
	case b >= mb:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
