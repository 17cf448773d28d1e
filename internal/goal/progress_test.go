package goal

import (
	"context"
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/session"
	"github.com/anthropic/worklog/internal/store"
)

// fakeAnalyzer counts calls and returns a fixed result.
type fakeAnalyzer struct {
	calls  int
	result *ProgressResult
	err    error
}

func (f *fakeAnalyzer) AnalyzeProgress(ctx context.Context, s *model.Session, goal string) (*ProgressResult, error) {
	f.calls++
	return f.result, f.err
}

// manualScheduler records armed timers and fires them on demand.
type manualScheduler struct {
	armed map[string]func()
	delay map[string]time.Duration
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{armed: make(map[string]func()), delay: make(map[string]time.Duration)}
}

func (m *manualScheduler) Schedule(key string, d time.Duration, fn func()) {
	m.armed[key] = fn
	m.delay[key] = d
}

func (m *manualScheduler) Cancel(key string) {
	delete(m.armed, key)
	delete(m.delay, key)
}

func (m *manualScheduler) fire(key string) bool {
	fn, ok := m.armed[key]
	if !ok {
		return false
	}
	delete(m.armed, key)
	fn()
	return true
}

type progressRig struct {
	store    *store.Store
	mgr      *session.Manager
	svc      *Service
	analyzer *fakeAnalyzer
	sched    *manualScheduler
	sess     *model.Session
	now      time.Time
}

func newProgressRig(t *testing.T) *progressRig {
	t.Helper()
	r := &progressRig{
		analyzer: &fakeAnalyzer{result: &ProgressResult{Progress: 40, SessionTitle: "Fixing auth"}},
		sched:    newManualScheduler(),
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	r.store = store.New(kv.NewMemory(), model.SnapshotConfig{
		MaxInactivityMinutes:          120,
		MinPromptsForProgressAnalysis: 2,
		ProgressAnalysisInterval:      3,
		ProgressAnalysisDebounceMs:    30000,
	})
	r.store.Now = func() time.Time { return r.now }
	r.mgr = session.NewManager(r.store, events.NewBus(), nil)
	r.mgr.Now = func() time.Time { return r.now }

	r.svc = NewService(r.store, r.mgr, nil, r.analyzer)
	r.svc.SetScheduler(r.sched)
	r.svc.Now = func() time.Time { return r.now }

	var err error
	r.sess, err = r.mgr.SyncFromSource(session.SyncInput{
		SourceID:        "claude_code",
		ProjectPath:     "/home/dev/app",
		SourceSessionID: "hash/abc",
	})
	if err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}
	return r
}

func (r *progressRig) addPrompt(t *testing.T) {
	t.Helper()
	r.addPromptTo(t, "claude_code", "hash/abc")
}

func (r *progressRig) addPromptTo(t *testing.T, sourceID, sourceSessionID string) {
	t.Helper()
	id := r.mgr.OnPromptDetected(session.PromptInput{
		Text:            "keep going on the auth fix",
		SourceID:        sourceID,
		SourceSessionID: sourceSessionID,
		Timestamp:       r.now,
	})
	if id == "" {
		t.Fatal("prompt dropped")
	}
}

func TestOnPromptAddedWaitsForMinPrompts(t *testing.T) {
	r := newProgressRig(t)

	r.addPrompt(t)
	r.svc.OnPromptAdded(r.sess.ID)
	if r.analyzer.calls != 0 {
		t.Fatalf("analysis ran with 1 prompt, min is 2")
	}

	r.addPrompt(t)
	r.svc.OnPromptAdded(r.sess.ID)
	if r.analyzer.calls != 1 {
		t.Fatalf("analysis calls = %d, want 1 at the minimum", r.analyzer.calls)
	}
	if r.sess.GoalProgress != 40 {
		t.Errorf("GoalProgress = %d, want 40 applied", r.sess.GoalProgress)
	}
	if r.sess.CustomName != "Fixing auth" {
		t.Errorf("CustomName = %q, want analyzer title applied", r.sess.CustomName)
	}
}

func TestOnPromptAddedDebouncesWithinWindow(t *testing.T) {
	r := newProgressRig(t)

	r.addPrompt(t)
	r.addPrompt(t)
	r.svc.OnPromptAdded(r.sess.ID)
	if r.analyzer.calls != 1 {
		t.Fatalf("first analysis calls = %d, want 1", r.analyzer.calls)
	}

	// Three more prompts inside the 30s window: due by interval, but the
	// runs must collapse into a single scheduled one.
	for i := 0; i < 3; i++ {
		r.now = r.now.Add(2 * time.Second)
		r.addPrompt(t)
		r.svc.OnPromptAdded(r.sess.ID)
	}
	if r.analyzer.calls != 1 {
		t.Fatalf("analysis ran inside the debounce window: calls = %d", r.analyzer.calls)
	}
	if len(r.sched.armed) != 1 {
		t.Fatalf("armed timers = %d, want exactly 1", len(r.sched.armed))
	}

	if !r.sched.fire(r.sess.ID) {
		t.Fatal("no timer armed for the session")
	}
	if r.analyzer.calls != 2 {
		t.Errorf("analysis calls after debounce fire = %d, want 2", r.analyzer.calls)
	}
}

func TestOnPromptAddedRunsAfterWindowExpires(t *testing.T) {
	r := newProgressRig(t)

	r.addPrompt(t)
	r.addPrompt(t)
	r.svc.OnPromptAdded(r.sess.ID)

	// Past the debounce window with interval satisfied: runs immediately.
	r.now = r.now.Add(time.Minute)
	for i := 0; i < 3; i++ {
		r.addPrompt(t)
	}
	r.svc.OnPromptAdded(r.sess.ID)
	if r.analyzer.calls != 2 {
		t.Errorf("analysis calls = %d, want immediate second run", r.analyzer.calls)
	}
}

func TestAnalysisKeepsExistingCustomName(t *testing.T) {
	r := newProgressRig(t)
	name := "My named session"
	if err := r.mgr.UpdateSession(r.sess.ID, session.SessionUpdate{CustomName: &name}); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	r.addPrompt(t)
	r.addPrompt(t)
	r.svc.OnPromptAdded(r.sess.ID)

	if r.sess.CustomName != name {
		t.Errorf("CustomName = %q, analyzer must not overwrite a user name", r.sess.CustomName)
	}
	if r.sess.GoalProgress != 40 {
		t.Errorf("GoalProgress = %d, want 40 still applied", r.sess.GoalProgress)
	}
}

func TestAnalyzeGoalProgressWithoutAnalyzer(t *testing.T) {
	r := newProgressRig(t)
	r.svc.analyzer = nil
	r.addPrompt(t)

	res, err := r.svc.AnalyzeGoalProgress(context.Background(), r.sess.ID)
	if err != nil || res != nil {
		t.Errorf("no-analyzer analysis = (%v, %v), want (nil, nil)", res, err)
	}
}

func TestAnalyzeGoalProgressNoPrompts(t *testing.T) {
	r := newProgressRig(t)

	res, err := r.svc.AnalyzeGoalProgress(context.Background(), r.sess.ID)
	if err != nil {
		t.Fatalf("AnalyzeGoalProgress: %v", err)
	}
	if res == nil || res.Progress != 0 || res.Reasoning == "" {
		t.Fatalf("empty-session analysis = %+v, want zero progress with a note", res)
	}
	if r.analyzer.calls != 0 {
		t.Errorf("analyzer consulted for a session with nothing to judge")
	}
}

func TestAnalyzeTopSessionsOnLoad(t *testing.T) {
	r := newProgressRig(t)
	r.addPrompt(t)
	r.addPrompt(t)

	// A second session that already carries progress: skipped.
	done, err := r.mgr.SyncFromSource(session.SyncInput{
		SourceID:        "claude_code",
		ProjectPath:     "/home/dev/app",
		SourceSessionID: "hash/done",
	})
	if err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}
	done.GoalProgress = 80
	done.Prompts = r.sess.Prompts

	r.svc.AnalyzeTopSessionsOnLoad(context.Background())
	if r.analyzer.calls != 1 {
		t.Errorf("startup analysis calls = %d, want 1 (analyzed sessions skipped)", r.analyzer.calls)
	}
}

func TestAnalyzeTopSessionsOnLoadCapsBeforeFiltering(t *testing.T) {
	r := newProgressRig(t)
	r.addPrompt(t)
	r.addPrompt(t) // hash/abc: eligible, oldest activity

	sync := func(source, src string) {
		t.Helper()
		if _, err := r.mgr.SyncFromSource(session.SyncInput{
			SourceID:        source,
			ProjectPath:     "/home/dev/app",
			SourceSessionID: src,
		}); err != nil {
			t.Fatalf("SyncFromSource(%s): %v", src, err)
		}
	}

	r.now = r.now.Add(time.Minute)
	sync("claude_code", "hash/mid")
	r.addPromptTo(t, "claude_code", "hash/mid")
	r.addPromptTo(t, "claude_code", "hash/mid")

	r.now = r.now.Add(time.Minute)
	sync("claude_code", "hash/new")
	r.addPromptTo(t, "claude_code", "hash/new")
	r.addPromptTo(t, "claude_code", "hash/new")

	// Most recent activity of all, but not a transcript-backed session:
	// it holds a top-3 slot and is then filtered out rather than ceding
	// the slot to the oldest eligible session.
	r.now = r.now.Add(time.Minute)
	sync("cursor", "ide/top")
	r.addPromptTo(t, "cursor", "ide/top")
	r.addPromptTo(t, "cursor", "ide/top")

	r.svc.AnalyzeTopSessionsOnLoad(context.Background())
	if r.analyzer.calls != 2 {
		t.Errorf("startup analysis calls = %d, want 2 (cap applied before filtering)", r.analyzer.calls)
	}
	if r.sess.GoalProgress != 0 {
		t.Errorf("oldest session analyzed despite falling outside the top slots")
	}
}

func TestGoalStatusCountsPromptsSinceGoalSet(t *testing.T) {
	r := newProgressRig(t)
	r.addPrompt(t)
	r.now = r.now.Add(time.Minute)

	if err := r.mgr.SetGoal("Fix AuthForm"); err != nil {
		t.Fatalf("SetGoal: %v", err)
	}
	r.now = r.now.Add(time.Minute)
	r.addPrompt(t)
	r.addPrompt(t)

	st, err := r.svc.GoalStatus(r.sess.ID)
	if err != nil {
		t.Fatalf("GoalStatus: %v", err)
	}
	if !st.HasGoal || st.Goal != "Fix AuthForm" {
		t.Fatalf("status = %+v, want goal set", st)
	}
	if st.PromptsSinceGoalSet != 2 {
		t.Errorf("PromptsSinceGoalSet = %d, want 2", st.PromptsSinceGoalSet)
	}

	// Empty id resolves the active session.
	active, err := r.svc.GoalStatus("")
	if err != nil {
		t.Fatalf("GoalStatus(active): %v", err)
	}
	if active.Goal != st.Goal {
		t.Errorf("active status goal = %q, want %q", active.Goal, st.Goal)
	}

	if _, err := r.svc.GoalStatus("session-missing"); err == nil {
		t.Error("unknown session id should error")
	}
}
