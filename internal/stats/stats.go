// Package stats maintains the rolling per-day score history and answers
// daily, weekly, monthly, and streak queries over it. Today's numbers
// come live from the session manager; history lives in the durable
// key-value store under a single JSON blob.
package stats

import (
	"encoding/json"
	"log"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/session"
	"github.com/anthropic/worklog/internal/store"
)

const (
	// retentionDays bounds the score history; older days are pruned on write.
	retentionDays = 90

	// historicalWindowDays is the lookback for the typical-day average.
	historicalWindowDays = 30

	// dailyCacheTTL bounds how stale a cached daily answer may be.
	dailyCacheTTL = 60 * time.Second

	dayFormat = "2006-01-02"
)

// dayScore is one day's accumulated prompt scores.
type dayScore struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

func (d dayScore) average() float64 {
	if d.Count == 0 {
		return 0
	}
	return d.Total / float64(d.Count)
}

// DailyStats is the answer to "how is today going".
type DailyStats struct {
	Date              string  `json:"date"`
	PromptCount       int     `json:"promptCount"`
	AverageScore      float64 `json:"averageScore"`
	BestScore         float64 `json:"bestScore"`
	WorstScore        float64 `json:"worstScore"`
	HistoricalAverage float64 `json:"historicalAverage"`
	DeltaVsTypical    float64 `json:"deltaVsTypical"`
	CodingMinutes     int     `json:"codingMinutes"`
	SessionCount      int     `json:"sessionCount"`
}

// DayTrend is one day within the weekly trend.
type DayTrend struct {
	Date         string  `json:"date"`
	AverageScore float64 `json:"averageScore"`
	PromptCount  int     `json:"promptCount"`
}

// MonthlyStats summarizes the current calendar month to date.
type MonthlyStats struct {
	Month        string   `json:"month"`
	TotalPrompts int      `json:"totalPrompts"`
	AverageScore float64  `json:"averageScore"`
	ActiveDays   int      `json:"activeDays"`
	BestDay      *DayBest `json:"bestDay,omitempty"`
}

// DayBest names the best-scoring day of a period.
type DayBest struct {
	Date         string  `json:"date"`
	AverageScore float64 `json:"averageScore"`
}

// Streak reports consecutive-active-day runs.
type Streak struct {
	Current int `json:"current"`
	Longest int `json:"longest"`
}

// Service answers stats queries. Safe for concurrent use.
type Service struct {
	store *store.Store
	mgr   *session.Manager

	// Now is the clock; tests replace it.
	Now func() time.Time

	mu       sync.Mutex
	cached   *DailyStats
	cachedAt time.Time
}

// NewService wires a stats service to the entity store and session manager.
func NewService(st *store.Store, mgr *session.Manager) *Service {
	return &Service{store: st, mgr: mgr, Now: time.Now}
}

// RecordScore folds a freshly scored prompt into today's history bucket
// and invalidates the daily cache. History write failures are logged and
// swallowed; scores still count toward today's live numbers.
func (s *Service) RecordScore(score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scores := s.loadScoresLocked()
	day := s.Now().Format(dayFormat)
	bucket := scores[day]
	bucket.Total += score
	bucket.Count++
	scores[day] = bucket

	s.saveScoresLocked(scores)
	s.cached = nil
}

// GetDailyStats answers today's stats, serving a cached copy for up to
// 60 seconds between recomputes.
func (s *Service) GetDailyStats() *DailyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.Now()
	if s.cached != nil && now.Sub(s.cachedAt) < dailyCacheTTL && s.cached.Date == now.Format(dayFormat) {
		out := *s.cached
		return &out
	}

	today := s.mgr.TodayStatsNow()
	scores := s.loadScoresLocked()

	historical := s.historicalAverage(scores, now)
	out := &DailyStats{
		Date:              now.Format(dayFormat),
		PromptCount:       today.PromptCount,
		AverageScore:      round1(today.AverageScore),
		BestScore:         today.BestScore,
		WorstScore:        today.WorstScore,
		HistoricalAverage: round1(historical),
		CodingMinutes:     today.CodingMinutes,
		SessionCount:      today.SessionCount,
	}
	if historical > 0 && today.PromptCount > 0 {
		out.DeltaVsTypical = round1(today.AverageScore - historical)
	}

	s.cached = out
	s.cachedAt = now
	copied := *out
	return &copied
}

// GetWeeklyTrend returns the last 7 days oldest first, today included.
// Today's entry reflects live session data rather than the history blob.
func (s *Service) GetWeeklyTrend() []DayTrend {
	s.mu.Lock()
	scores := s.loadScoresLocked()
	s.mu.Unlock()

	now := s.Now()
	today := now.Format(dayFormat)
	live := s.mgr.TodayStatsNow()

	out := make([]DayTrend, 0, 7)
	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i).Format(dayFormat)
		t := DayTrend{Date: day}
		if day == today {
			t.AverageScore = round1(live.AverageScore)
			t.PromptCount = live.PromptCount
		} else if bucket, ok := scores[day]; ok {
			t.AverageScore = round1(bucket.average())
			t.PromptCount = bucket.Count
		}
		out = append(out, t)
	}
	return out
}

// GetMonthlyStats summarizes the current month to date from the history.
func (s *Service) GetMonthlyStats() *MonthlyStats {
	s.mu.Lock()
	scores := s.loadScoresLocked()
	s.mu.Unlock()

	now := s.Now()
	prefix := now.Format("2006-01")

	out := &MonthlyStats{Month: prefix}
	var total float64
	for day, bucket := range scores {
		if len(day) < len(prefix) || day[:len(prefix)] != prefix {
			continue
		}
		if bucket.Count == 0 {
			continue
		}
		out.ActiveDays++
		out.TotalPrompts += bucket.Count
		total += bucket.Total

		avg := bucket.average()
		if out.BestDay == nil || avg > out.BestDay.AverageScore {
			out.BestDay = &DayBest{Date: day, AverageScore: round1(avg)}
		}
	}
	if out.TotalPrompts > 0 {
		out.AverageScore = round1(total / float64(out.TotalPrompts))
	}
	return out
}

// GetStreak computes the current run of consecutive active days (ending
// today, or yesterday when today has no activity yet) and the longest
// run in the retained history.
func (s *Service) GetStreak() Streak {
	s.mu.Lock()
	scores := s.loadScoresLocked()
	s.mu.Unlock()

	now := s.Now()
	if live := s.mgr.TodayStatsNow(); live.PromptCount > 0 {
		day := now.Format(dayFormat)
		bucket := scores[day]
		if bucket.Count == 0 {
			bucket.Count = live.PromptCount
			scores[day] = bucket
		}
	}

	active := make(map[string]bool, len(scores))
	var days []string
	for day, bucket := range scores {
		if bucket.Count > 0 {
			active[day] = true
			days = append(days, day)
		}
	}
	sort.Strings(days)

	var out Streak

	// Current streak walks backwards from today, allowing the run to end
	// yesterday when today is still quiet.
	cursor := now
	if !active[cursor.Format(dayFormat)] {
		cursor = cursor.AddDate(0, 0, -1)
	}
	for active[cursor.Format(dayFormat)] {
		out.Current++
		cursor = cursor.AddDate(0, 0, -1)
	}

	// Longest streak scans the sorted active days.
	run := 0
	var prev time.Time
	for _, day := range days {
		t, err := time.Parse(dayFormat, day)
		if err != nil {
			continue
		}
		if run > 0 && t.Sub(prev) == 24*time.Hour {
			run++
		} else {
			run = 1
		}
		if run > out.Longest {
			out.Longest = run
		}
		prev = t
	}
	if out.Current > out.Longest {
		out.Longest = out.Current
	}
	return out
}

// historicalAverage averages scored prompts over the lookback window,
// excluding today so the typical-day baseline doesn't chase the day
// being compared against it.
func (s *Service) historicalAverage(scores map[string]dayScore, now time.Time) float64 {
	today := now.Format(dayFormat)
	cutoff := now.AddDate(0, 0, -historicalWindowDays).Format(dayFormat)

	var total float64
	var count int
	for day, bucket := range scores {
		if day == today || day < cutoff {
			continue
		}
		total += bucket.Total
		count += bucket.Count
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// loadScoresLocked reads the history blob; a missing or corrupt blob
// yields an empty history.
func (s *Service) loadScoresLocked() map[string]dayScore {
	scores := make(map[string]dayScore)
	db := s.store.KV()
	if db == nil {
		return scores
	}
	raw, ok, err := db.Get(kv.KeyHistoricalScores)
	if err != nil {
		logf("reading score history: %v", err)
		return scores
	}
	if !ok {
		return scores
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		logf("score history corrupt, starting fresh: %v", err)
		return make(map[string]dayScore)
	}
	return scores
}

// saveScoresLocked prunes entries older than the retention window and
// writes the blob back.
func (s *Service) saveScoresLocked(scores map[string]dayScore) {
	cutoff := s.Now().AddDate(0, 0, -retentionDays).Format(dayFormat)
	for day := range scores {
		if day < cutoff {
			delete(scores, day)
		}
	}

	db := s.store.KV()
	if db == nil {
		return
	}
	raw, err := json.Marshal(scores)
	if err != nil {
		logf("encoding score history: %v", err)
		return
	}
	if err := db.Set(kv.KeyHistoricalScores, raw); err != nil {
		logf("persisting score history: %v", err)
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func logf(format string, args ...any) {
	log.Printf("stats: "+format, args...)
}
