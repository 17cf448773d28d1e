package summary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/store"
)

// fakeLM is a canned llm.Capability.
type fakeLM struct {
	initialized bool
	text        string
	err         error

	feature string
	lastReq llm.Request
}

func (f *fakeLM) GenerateCompletion(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return f.GenerateCompletionForFeature(ctx, "", req)
}

func (f *fakeLM) GenerateCompletionForFeature(ctx context.Context, feature string, req llm.Request) (*llm.Result, error) {
	f.feature = feature
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.text, Model: "fake-model", Provider: "fake"}, nil
}

func (f *fakeLM) ActiveProviderInfo() *llm.ProviderInfo {
	return &llm.ProviderInfo{Type: "fake", Model: "fake-model"}
}

func (f *fakeLM) IsInitialized() bool { return f.initialized }

func (f *fakeLM) Initialize(ctx context.Context) error { return nil }

var testNow = time.Date(2026, 3, 11, 15, 0, 0, 0, time.UTC)

// seededStore carries one project with a session today (2 prompts, 2
// files) and a session two days back (2 prompts).
func seededStore() *store.Store {
	st := store.New(kv.NewMemory(), model.SnapshotConfig{})

	today := &model.Session{
		ID:           "s-today",
		ProjectID:    "proj-app",
		Platform:     model.PlatformClaudeCode,
		StartTime:    testNow.Add(-80 * time.Minute),
		LastActivity: testNow.Add(-10 * time.Minute),
		CustomName:   "Fixing auth",
	}
	for i, at := range []time.Time{testNow.Add(-70 * time.Minute), testNow.Add(-30 * time.Minute)} {
		p := &model.Prompt{
			ID:        "p-today-" + string(rune('a'+i)),
			SessionID: today.ID,
			Text:      "fix the token refresh in AuthForm",
			Timestamp: at,
		}
		p.TruncatedText = p.Text
		today.Prompts = append(today.Prompts, p)
	}
	today.PromptCount = len(today.Prompts)
	today.Responses = []*model.Response{{
		ID:            "r1",
		Source:        "claude_code",
		FilesModified: []string{"src/auth/AuthForm.tsx", "src/auth/token.ts"},
	}}

	old := &model.Session{
		ID:           "s-old",
		ProjectID:    "proj-app",
		Platform:     model.PlatformClaudeCode,
		StartTime:    testNow.AddDate(0, 0, -2).Add(-time.Hour),
		LastActivity: testNow.AddDate(0, 0, -2),
		Goal:         "Refactor store layer",
	}
	for i := 0; i < 2; i++ {
		p := &model.Prompt{
			ID:        "p-old-" + string(rune('a'+i)),
			SessionID: old.ID,
			Text:      "split the store into load and save",
			Timestamp: testNow.AddDate(0, 0, -2).Add(-time.Duration(i) * time.Minute),
		}
		p.TruncatedText = p.Text
		old.Prompts = append(old.Prompts, p)
	}
	old.PromptCount = len(old.Prompts)

	st.PutProject(&model.Project{
		ID: "proj-app", Name: "app", Path: "/home/dev/app",
		Sessions:     []*model.Session{today, old},
		LastActivity: today.LastActivity,
	})
	return st
}

func newService(st *store.Store, lm llm.Capability) *Service {
	svc := NewService(st, lm)
	svc.Now = func() time.Time { return testNow }
	return svc
}

func TestGenerateEmptyWindow(t *testing.T) {
	svc := newService(store.New(kv.NewMemory(), model.SnapshotConfig{}), nil)

	sum, err := svc.Generate(context.Background(), Daily, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sum.Quality != ParsedEmpty {
		t.Errorf("quality = %q, want %q", sum.Quality, ParsedEmpty)
	}
	if len(sum.Content.SuggestedFocus) == 0 || !strings.Contains(sum.Content.SuggestedFocus[0], "today") {
		t.Errorf("empty-period focus = %v, want a hint naming the period", sum.Content.SuggestedFocus)
	}
}

func TestGenerateWithoutProviderFallsBack(t *testing.T) {
	svc := newService(seededStore(), nil)

	sum, err := svc.Generate(context.Background(), Daily, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !sum.Fallback || sum.ErrorKind != llm.ErrKindNoProvider {
		t.Fatalf("fallback = %v kind = %q, want no_provider fallback", sum.Fallback, sum.ErrorKind)
	}
	if sum.Quality != ParsedDegraded {
		t.Errorf("quality = %q, want %q", sum.Quality, ParsedDegraded)
	}
	if sum.Suggestion == "" {
		t.Error("fallback carries no remediation suggestion")
	}
	if len(sum.Content.Accomplishments) == 0 {
		t.Error("fallback content has no accomplishments")
	}
}

func TestGenerateUninitializedProviderFallsBack(t *testing.T) {
	svc := newService(seededStore(), &fakeLM{initialized: false})

	sum, err := svc.Generate(context.Background(), Daily, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sum.ErrorKind != llm.ErrKindNoProvider {
		t.Errorf("kind = %q, want %q", sum.ErrorKind, llm.ErrKindNoProvider)
	}
}

func TestGenerateClassifiesProviderError(t *testing.T) {
	lm := &fakeLM{initialized: true, err: errors.New("HTTP 429 too many requests")}
	svc := newService(seededStore(), lm)

	sum, err := svc.Generate(context.Background(), Daily, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !sum.Fallback || sum.ErrorKind != llm.ErrKindRateLimit {
		t.Errorf("fallback = %v kind = %q, want rate_limit fallback", sum.Fallback, sum.ErrorKind)
	}
}

func TestGenerateParsesModelOutput(t *testing.T) {
	lm := &fakeLM{initialized: true, text: `{"accomplishments":[{"text":"Fixed token refresh","category":"bugfix","project":"app"}],"suggestedFocus":["Add tests"]}`}
	svc := newService(seededStore(), lm)

	sum, err := svc.Generate(context.Background(), Daily, "focus on auth")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if sum.Fallback || sum.Quality != ParsedOk {
		t.Fatalf("fallback = %v quality = %q, want clean parse", sum.Fallback, sum.Quality)
	}
	if sum.Provider != "fake" {
		t.Errorf("provider = %q, want %q", sum.Provider, "fake")
	}
	if lm.feature != llm.FeatureSummaries {
		t.Errorf("feature = %q, want %q", lm.feature, llm.FeatureSummaries)
	}
	if !strings.Contains(lm.lastReq.Prompt, "focus on auth") {
		t.Error("developer instructions missing from the prompt")
	}
	if !strings.Contains(lm.lastReq.Prompt, "app: ") {
		t.Error("project digest missing from the prompt")
	}
}

func TestGenerateUnparseableOutputFallsBack(t *testing.T) {
	lm := &fakeLM{initialized: true, text: "Sorry, I cannot summarize this."}
	svc := newService(seededStore(), lm)

	sum, err := svc.Generate(context.Background(), Daily, "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !sum.Fallback || sum.ErrorKind != llm.ErrKindUnknown {
		t.Errorf("fallback = %v kind = %q, want unknown-kind fallback", sum.Fallback, sum.ErrorKind)
	}
}

func TestGenerateCancelledContext(t *testing.T) {
	lm := &fakeLM{initialized: true, text: `{"suggestedFocus":["x"]}`}
	svc := newService(seededStore(), lm)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Generate(ctx, Daily, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate = %v, want context.Canceled", err)
	}
}

func TestWindowFor(t *testing.T) {
	now := time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC)
	dayStart := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		tf   Timeframe
		from time.Time
	}{
		{Daily, dayStart},
		{Weekly, dayStart.AddDate(0, 0, -6)},
		{Monthly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		w := windowFor(tc.tf, now)
		if !w.From.Equal(tc.from) {
			t.Errorf("windowFor(%s).From = %v, want %v", tc.tf, w.From, tc.from)
		}
		if !w.To.Equal(now) {
			t.Errorf("windowFor(%s).To = %v, want now", tc.tf, w.To)
		}
	}
}

func TestWeekOfMonth(t *testing.T) {
	cases := []struct {
		day  int
		want int
	}{{1, 1}, {7, 1}, {8, 2}, {15, 3}, {31, 5}}
	for _, tc := range cases {
		at := time.Date(2026, 3, tc.day, 12, 0, 0, 0, time.UTC)
		if got := weekOfMonth(at); got != tc.want {
			t.Errorf("weekOfMonth(day %d) = %d, want %d", tc.day, got, tc.want)
		}
	}
}

func TestGenerateDailyReportTotals(t *testing.T) {
	svc := newService(seededStore(), nil)

	rep, err := svc.GenerateDaily(context.Background(), "")
	if err != nil {
		t.Fatalf("GenerateDaily: %v", err)
	}
	if rep.Date != "2026-03-11" {
		t.Errorf("Date = %q", rep.Date)
	}
	if rep.TotalMessages != 2 {
		t.Errorf("TotalMessages = %d, want 2 (only today counts)", rep.TotalMessages)
	}
	if rep.FilesTouched != 2 {
		t.Errorf("FilesTouched = %d, want 2", rep.FilesTouched)
	}
	if len(rep.TopProjects) != 1 || rep.TopProjects[0] != "app" {
		t.Errorf("TopProjects = %v", rep.TopProjects)
	}
}

func TestGenerateWeeklyReportShape(t *testing.T) {
	svc := newService(seededStore(), nil)

	rep, err := svc.GenerateWeekly(context.Background(), "")
	if err != nil {
		t.Fatalf("GenerateWeekly: %v", err)
	}
	if rep.WeekStart != "2026-03-05" {
		t.Errorf("WeekStart = %q, want trailing window start", rep.WeekStart)
	}
	if len(rep.Days) != 7 {
		t.Fatalf("days = %d, want 7", len(rep.Days))
	}
	if rep.TotalMessages != 4 {
		t.Errorf("TotalMessages = %d, want 4 across the window", rep.TotalMessages)
	}

	byDate := make(map[string]int)
	for _, d := range rep.Days {
		byDate[d.Date] = d.Messages
	}
	if byDate["2026-03-11"] != 2 {
		t.Errorf("today messages = %d, want 2", byDate["2026-03-11"])
	}
	if byDate["2026-03-09"] != 2 {
		t.Errorf("two-days-back messages = %d, want 2", byDate["2026-03-09"])
	}
}

func TestGenerateMonthlyReportBuckets(t *testing.T) {
	svc := newService(seededStore(), nil)

	rep, err := svc.GenerateMonthly(context.Background(), "")
	if err != nil {
		t.Fatalf("GenerateMonthly: %v", err)
	}
	if rep.Month != "2026-03" {
		t.Errorf("Month = %q", rep.Month)
	}
	if rep.ActiveDays != 2 {
		t.Errorf("ActiveDays = %d, want 2", rep.ActiveDays)
	}
	// Mar 9 and Mar 11 both land in week-of-month 2.
	if len(rep.Weeks) != 1 || rep.Weeks[0].WeekOfMonth != 2 || rep.Weeks[0].Messages != 4 {
		t.Errorf("Weeks = %+v, want one bucket in week 2 with 4 messages", rep.Weeks)
	}
}
