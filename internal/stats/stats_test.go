package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/session"
	"github.com/anthropic/worklog/internal/store"
)

type statsRig struct {
	db  *kv.Memory
	st  *store.Store
	mgr *session.Manager
	svc *Service
	now time.Time
}

func newStatsRig(t *testing.T) *statsRig {
	t.Helper()
	r := &statsRig{
		db:  kv.NewMemory(),
		now: time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC),
	}
	r.st = store.New(r.db, model.SnapshotConfig{})
	r.st.Now = func() time.Time { return r.now }
	r.mgr = session.NewManager(r.st, events.NewBus(), nil)
	r.mgr.Now = func() time.Time { return r.now }
	r.svc = NewService(r.st, r.mgr)
	r.svc.Now = func() time.Time { return r.now }
	return r
}

// seedHistory writes the score-history blob directly.
func (r *statsRig) seedHistory(t *testing.T, scores map[string]dayScore) {
	t.Helper()
	raw, err := json.Marshal(scores)
	if err != nil {
		t.Fatalf("marshal history: %v", err)
	}
	if err := r.db.Set(kv.KeyHistoricalScores, raw); err != nil {
		t.Fatalf("seed history: %v", err)
	}
}

func (r *statsRig) readHistory(t *testing.T) map[string]dayScore {
	t.Helper()
	raw, ok, err := r.db.Get(kv.KeyHistoricalScores)
	if err != nil || !ok {
		t.Fatalf("history blob missing: ok=%v err=%v", ok, err)
	}
	scores := make(map[string]dayScore)
	if err := json.Unmarshal(raw, &scores); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	return scores
}

// seedLiveToday installs one session with the given scored prompts today.
func (r *statsRig) seedLiveToday(scores ...float64) {
	sess := &model.Session{
		ID:           "s-live",
		ProjectID:    "proj-a",
		Platform:     model.PlatformClaudeCode,
		StartTime:    r.now.Add(-time.Hour),
		LastActivity: r.now.Add(-5 * time.Minute),
	}
	for i, sc := range scores {
		sess.Prompts = append(sess.Prompts, &model.Prompt{
			ID:        "p" + string(rune('a'+i)),
			SessionID: sess.ID,
			Text:      "work",
			Score:     sc,
			Timestamp: r.now.Add(-time.Duration(len(scores)-i) * time.Minute),
		})
	}
	sess.PromptCount = len(sess.Prompts)
	r.st.PutProject(&model.Project{
		ID: "proj-a", Name: "a", Path: "/a",
		Sessions: []*model.Session{sess}, LastActivity: sess.LastActivity,
	})
}

func (r *statsRig) day(offset int) string {
	return r.now.AddDate(0, 0, offset).Format(dayFormat)
}

func TestRecordScoreAccumulates(t *testing.T) {
	r := newStatsRig(t)

	r.svc.RecordScore(8)
	r.svc.RecordScore(6)

	scores := r.readHistory(t)
	bucket := scores[r.day(0)]
	if bucket.Count != 2 || bucket.Total != 14 {
		t.Errorf("today bucket = %+v, want total 14 over 2", bucket)
	}
}

func TestRecordScorePrunesOldDays(t *testing.T) {
	r := newStatsRig(t)
	r.seedHistory(t, map[string]dayScore{
		r.day(-100): {Total: 50, Count: 10},
		r.day(-10):  {Total: 12, Count: 2},
	})

	r.svc.RecordScore(7)

	scores := r.readHistory(t)
	if _, ok := scores[r.day(-100)]; ok {
		t.Error("day beyond retention survived a write")
	}
	if _, ok := scores[r.day(-10)]; !ok {
		t.Error("recent day was pruned")
	}
}

func TestGetDailyStatsComputesDelta(t *testing.T) {
	r := newStatsRig(t)
	r.seedLiveToday(8, 8)
	r.seedHistory(t, map[string]dayScore{
		r.day(0):  {Total: 100, Count: 2}, // today's bucket must not skew the baseline
		r.day(-1): {Total: 12, Count: 2},  // avg 6
		r.day(-40): {Total: 10, Count: 1}, // beyond the 30-day lookback
	})

	ds := r.svc.GetDailyStats()
	if ds.PromptCount != 2 {
		t.Fatalf("PromptCount = %d, want 2", ds.PromptCount)
	}
	if ds.AverageScore != 8 {
		t.Errorf("AverageScore = %v, want 8", ds.AverageScore)
	}
	if ds.HistoricalAverage != 6 {
		t.Errorf("HistoricalAverage = %v, want 6 (today and stale days excluded)", ds.HistoricalAverage)
	}
	if ds.DeltaVsTypical != 2 {
		t.Errorf("DeltaVsTypical = %v, want 2", ds.DeltaVsTypical)
	}
}

func TestGetDailyStatsCaches(t *testing.T) {
	r := newStatsRig(t)
	r.seedLiveToday(8)

	first := r.svc.GetDailyStats()
	if first.PromptCount != 1 {
		t.Fatalf("PromptCount = %d, want 1", first.PromptCount)
	}

	// New activity inside the TTL is not visible yet.
	r.seedLiveToday(8, 6)
	r.now = r.now.Add(30 * time.Second)
	if got := r.svc.GetDailyStats(); got.PromptCount != 1 {
		t.Errorf("PromptCount within TTL = %d, want cached 1", got.PromptCount)
	}

	// Past the TTL the answer is recomputed.
	r.now = r.now.Add(31 * time.Second)
	if got := r.svc.GetDailyStats(); got.PromptCount != 2 {
		t.Errorf("PromptCount after TTL = %d, want 2", got.PromptCount)
	}
}

func TestRecordScoreInvalidatesDailyCache(t *testing.T) {
	r := newStatsRig(t)
	r.seedLiveToday(8)
	r.svc.GetDailyStats()

	r.seedLiveToday(8, 6)
	r.svc.RecordScore(6)

	if got := r.svc.GetDailyStats(); got.PromptCount != 2 {
		t.Errorf("PromptCount after RecordScore = %d, want recomputed 2", got.PromptCount)
	}
}

func TestGetWeeklyTrendUsesLiveToday(t *testing.T) {
	r := newStatsRig(t)
	r.seedLiveToday(8, 8)
	r.seedHistory(t, map[string]dayScore{
		r.day(0):  {Total: 2, Count: 1}, // stale today entry, superseded by live data
		r.day(-1): {Total: 14, Count: 2},
	})

	trend := r.svc.GetWeeklyTrend()
	if len(trend) != 7 {
		t.Fatalf("trend length = %d, want 7", len(trend))
	}
	if trend[0].Date != r.day(-6) {
		t.Errorf("trend[0].Date = %q, want oldest first", trend[0].Date)
	}

	yesterday := trend[5]
	if yesterday.AverageScore != 7 || yesterday.PromptCount != 2 {
		t.Errorf("yesterday = %+v, want avg 7 over 2", yesterday)
	}
	today := trend[6]
	if today.AverageScore != 8 || today.PromptCount != 2 {
		t.Errorf("today = %+v, want live avg 8 over 2", today)
	}
}

func TestGetMonthlyStats(t *testing.T) {
	r := newStatsRig(t)
	r.seedHistory(t, map[string]dayScore{
		"2026-03-02": {Total: 10, Count: 2}, // avg 5
		"2026-03-04": {Total: 27, Count: 3}, // avg 9
		"2026-02-27": {Total: 30, Count: 3}, // previous month
	})

	ms := r.svc.GetMonthlyStats()
	if ms.Month != "2026-03" {
		t.Errorf("Month = %q", ms.Month)
	}
	if ms.ActiveDays != 2 || ms.TotalPrompts != 5 {
		t.Errorf("ActiveDays = %d TotalPrompts = %d, want 2 and 5", ms.ActiveDays, ms.TotalPrompts)
	}
	if ms.AverageScore != 7.4 {
		t.Errorf("AverageScore = %v, want 7.4", ms.AverageScore)
	}
	if ms.BestDay == nil || ms.BestDay.Date != "2026-03-04" {
		t.Errorf("BestDay = %+v, want 2026-03-04", ms.BestDay)
	}
}

func TestGetStreakWithLiveToday(t *testing.T) {
	r := newStatsRig(t)
	r.seedLiveToday(8)
	r.seedHistory(t, map[string]dayScore{
		r.day(-1): {Total: 8, Count: 1},
		r.day(-2): {Total: 8, Count: 1},
		r.day(-3): {Total: 8, Count: 1},
		// gap at -4
		r.day(-5): {Total: 8, Count: 1},
		r.day(-6): {Total: 8, Count: 1},
		r.day(-7): {Total: 8, Count: 1},
		r.day(-8): {Total: 8, Count: 1},
		r.day(-9): {Total: 8, Count: 1},
	})

	st := r.svc.GetStreak()
	if st.Current != 4 {
		t.Errorf("Current = %d, want 4 (three history days plus live today)", st.Current)
	}
	if st.Longest != 5 {
		t.Errorf("Longest = %d, want the 5-day run", st.Longest)
	}
}

func TestGetStreakQuietTodayEndsYesterday(t *testing.T) {
	r := newStatsRig(t)
	r.seedHistory(t, map[string]dayScore{
		r.day(-1): {Total: 8, Count: 1},
		r.day(-2): {Total: 8, Count: 1},
	})

	st := r.svc.GetStreak()
	if st.Current != 2 {
		t.Errorf("Current = %d, want 2 ending yesterday", st.Current)
	}

	// A gap at yesterday means no current streak at all.
	r2 := newStatsRig(t)
	r2.seedHistory(t, map[string]dayScore{r2.day(-2): {Total: 8, Count: 1}})
	if st := r2.svc.GetStreak(); st.Current != 0 {
		t.Errorf("Current = %d, want 0 after a gap", st.Current)
	}
}

func TestHistoryCorruptBlobStartsFresh(t *testing.T) {
	r := newStatsRig(t)
	if err := r.db.Set(kv.KeyHistoricalScores, []byte("{broken")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	r.svc.RecordScore(5)
	scores := r.readHistory(t)
	if bucket := scores[r.day(0)]; bucket.Count != 1 {
		t.Errorf("today bucket = %+v, want fresh history with 1 score", bucket)
	}
}
