// Package summary turns tracked activity into daily, weekly, and monthly
// narratives. The language model writes the narrative; everything around
// it (the activity digest, parsing, fallbacks, and period enrichment) is
// deterministic, so a summary always comes back even with no model bound.
package summary

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/store"
)

// Generation parameters for summary completions.
const (
	summaryTemperature = 0.3
	summaryMaxTokens   = 1000
)

// Summary is one generated summary with its provenance.
type Summary struct {
	Timeframe   Timeframe     `json:"timeframe"`
	GeneratedAt time.Time     `json:"generatedAt"`
	Quality     ParseQuality  `json:"quality"`
	Content     *Content      `json:"content"`
	Fallback    bool          `json:"fallback,omitempty"`
	ErrorKind   llm.ErrorKind `json:"errorKind,omitempty"`
	Suggestion  string        `json:"suggestion,omitempty"`
	Provider    string        `json:"provider,omitempty"`
}

// Service generates summaries. The capability may be nil; generation
// then always takes the deterministic fallback path.
type Service struct {
	store *store.Store
	lm    llm.Capability

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// NewService wires a summary service.
func NewService(st *store.Store, lm llm.Capability) *Service {
	return &Service{store: st, lm: lm, Now: time.Now}
}

// Generate produces a summary for the timeframe. Model failures and
// unparseable output degrade to a deterministic fallback; the only error
// returned is context cancellation.
func (s *Service) Generate(ctx context.Context, tf Timeframe, instructions string) (*Summary, error) {
	now := s.Now()
	act := aggregate(s.store, windowFor(tf, now))

	out := &Summary{Timeframe: tf, GeneratedAt: now}

	if act.TotalPrompts == 0 {
		out.Quality = ParsedEmpty
		out.Content = emptyPeriodContent(tf)
		return out, nil
	}

	if s.lm == nil || !s.lm.IsInitialized() {
		s.applyFallback(out, act, llm.ErrKindNoProvider)
		return out, nil
	}

	res, err := s.lm.GenerateCompletionForFeature(ctx, llm.FeatureSummaries, llm.Request{
		SystemPrompt: systemPrompt,
		Prompt:       buildUserPrompt(tf, act, instructions),
		Temperature:  summaryTemperature,
		MaxTokens:    summaryMaxTokens,
	})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		kind := llm.ClassifyError(err)
		logf("%s summary generation failed (%s): %v", tf, kind, err)
		s.applyFallback(out, act, kind)
		return out, nil
	}

	out.Provider = res.Provider
	content, quality := parseContent(res.Text)
	if quality == ParsedEmpty {
		logf("%s summary output unparseable, using fallback", tf)
		s.applyFallback(out, act, llm.ErrKindUnknown)
		return out, nil
	}

	out.Quality = quality
	out.Content = content
	return out, nil
}

// applyFallback fills the summary from the digest alone, tagged with the
// failure kind and its remediation hint.
func (s *Service) applyFallback(out *Summary, act *activity, kind llm.ErrorKind) {
	out.Fallback = true
	out.ErrorKind = kind
	out.Suggestion = kind.Suggestion()
	out.Quality = ParsedDegraded
	out.Content = fallbackContent(act)
}

// fallbackContent derives a minimal factual summary from the digest.
func fallbackContent(act *activity) *Content {
	c := &Content{}
	for _, w := range act.WorkSummaries {
		c.Accomplishments = append(c.Accomplishments, Accomplishment{Text: w, Category: "other"})
	}
	for _, p := range act.Projects {
		if len(c.Accomplishments) >= maxWorkSummaries {
			break
		}
		c.Accomplishments = append(c.Accomplishments, Accomplishment{
			Text:     fmt.Sprintf("Worked in %s (%d prompts, %d min)", p.Name, p.Prompts, p.Minutes),
			Category: "other",
			Project:  p.Name,
		})
	}
	if len(act.Projects) > 0 {
		c.SuggestedFocus = append(c.SuggestedFocus, "Continue work in "+act.Projects[0].Name)
	}
	return c
}

// emptyPeriodContent is the summary for a window with no activity.
func emptyPeriodContent(tf Timeframe) *Content {
	period := map[Timeframe]string{Daily: "today", Weekly: "this week", Monthly: "this month"}[tf]
	return &Content{
		SuggestedFocus: []string{fmt.Sprintf("No tracked activity %s yet. Start a session to build a summary.", period)},
	}
}

// DayActivity is one weekday's message count within a weekly report.
type DayActivity struct {
	Date     string `json:"date"`
	Weekday  string `json:"weekday"`
	Messages int    `json:"messages"`
}

// WeekActivity is one week-of-month bucket within a monthly report.
type WeekActivity struct {
	WeekOfMonth int `json:"weekOfMonth"`
	Messages    int `json:"messages"`
}

// DailyReport enriches a daily summary with hard numbers.
type DailyReport struct {
	Date          string   `json:"date"`
	Summary       *Summary `json:"summary"`
	TotalMessages int      `json:"totalMessages"`
	FilesTouched  int      `json:"filesTouched"`
	CodingMinutes int      `json:"codingMinutes"`
	TopProjects   []string `json:"topProjects,omitempty"`
}

// WeeklyReport adds the Monday-to-Sunday activity shape.
type WeeklyReport struct {
	WeekStart     string        `json:"weekStart"`
	Summary       *Summary      `json:"summary"`
	Days          []DayActivity `json:"days"`
	TotalMessages int           `json:"totalMessages"`
	FilesTouched  int           `json:"filesTouched"`
	CodingMinutes int           `json:"codingMinutes"`
	TopProjects   []string      `json:"topProjects,omitempty"`
}

// MonthlyReport adds per-week buckets and active-day counts.
type MonthlyReport struct {
	Month         string         `json:"month"`
	Summary       *Summary       `json:"summary"`
	Weeks         []WeekActivity `json:"weeks"`
	ActiveDays    int            `json:"activeDays"`
	TotalMessages int            `json:"totalMessages"`
	FilesTouched  int            `json:"filesTouched"`
	CodingMinutes int            `json:"codingMinutes"`
	TopProjects   []string       `json:"topProjects,omitempty"`
}

// maxTopProjects caps the project list attached to reports.
const maxTopProjects = 3

// GenerateDaily produces the enriched daily report.
func (s *Service) GenerateDaily(ctx context.Context, instructions string) (*DailyReport, error) {
	sum, err := s.Generate(ctx, Daily, instructions)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	act := aggregate(s.store, windowFor(Daily, now))

	return &DailyReport{
		Date:          now.Format("2006-01-02"),
		Summary:       sum,
		TotalMessages: act.TotalPrompts,
		FilesTouched:  countFiles(act),
		CodingMinutes: act.TotalMinutes,
		TopProjects:   topProjects(act),
	}, nil
}

// GenerateWeekly produces the enriched weekly report. Days are grouped
// Monday through Sunday over the trailing window.
func (s *Service) GenerateWeekly(ctx context.Context, instructions string) (*WeeklyReport, error) {
	sum, err := s.Generate(ctx, Weekly, instructions)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	w := windowFor(Weekly, now)
	act := aggregate(s.store, w)

	perDay := messagesPerDay(s.store, w)
	var days []DayActivity
	for d := w.From; d.Before(w.To); d = d.AddDate(0, 0, 1) {
		key := d.Format("2006-01-02")
		days = append(days, DayActivity{Date: key, Weekday: d.Weekday().String(), Messages: perDay[key]})
	}

	return &WeeklyReport{
		WeekStart:     w.From.Format("2006-01-02"),
		Summary:       sum,
		Days:          days,
		TotalMessages: act.TotalPrompts,
		FilesTouched:  countFiles(act),
		CodingMinutes: act.TotalMinutes,
		TopProjects:   topProjects(act),
	}, nil
}

// GenerateMonthly produces the enriched month-to-date report.
func (s *Service) GenerateMonthly(ctx context.Context, instructions string) (*MonthlyReport, error) {
	sum, err := s.Generate(ctx, Monthly, instructions)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	w := windowFor(Monthly, now)
	act := aggregate(s.store, w)

	perDay := messagesPerDay(s.store, w)
	weekBuckets := make(map[int]int)
	for key, n := range perDay {
		t, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		weekBuckets[weekOfMonth(t)] += n
	}
	var weeks []WeekActivity
	for i := 1; i <= 5; i++ {
		if n, ok := weekBuckets[i]; ok {
			weeks = append(weeks, WeekActivity{WeekOfMonth: i, Messages: n})
		}
	}

	return &MonthlyReport{
		Month:         now.Format("2006-01"),
		Summary:       sum,
		Weeks:         weeks,
		ActiveDays:    len(act.ActiveDays),
		TotalMessages: act.TotalPrompts,
		FilesTouched:  countFiles(act),
		CodingMinutes: act.TotalMinutes,
		TopProjects:   topProjects(act),
	}, nil
}

// messagesPerDay counts window prompts per calendar day.
func messagesPerDay(st *store.Store, w window) map[string]int {
	st.RLockGraph()
	defer st.RUnlockGraph()

	out := make(map[string]int)
	for _, proj := range st.AllProjects() {
		for _, sess := range proj.Sessions {
			for _, p := range sess.Prompts {
				if w.contains(p.Timestamp) {
					out[p.Timestamp.Format("2006-01-02")]++
				}
			}
		}
	}
	return out
}

// weekOfMonth is 1-based, counting from the 1st of the month.
func weekOfMonth(t time.Time) int {
	return (t.Day()-1)/7 + 1
}

func countFiles(act *activity) int {
	n := 0
	for _, p := range act.Projects {
		n += len(p.Files)
	}
	return n
}

func topProjects(act *activity) []string {
	var out []string
	for _, p := range act.Projects {
		out = append(out, p.Name)
		if len(out) >= maxTopProjects {
			break
		}
	}
	return out
}

func logf(format string, args ...any) {
	log.Printf("summary: "+format, args...)
}
