package goal

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/session"
)

// topSessionsOnLoad caps how many sessions get a progress analysis when
// state is loaded at startup.
const topSessionsOnLoad = 3

// timerScheduler is the production Scheduler: one time.AfterFunc per key,
// arming a key replaces its pending timer.
type timerScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newTimerScheduler() *timerScheduler {
	return &timerScheduler{timers: make(map[string]*time.Timer)}
}

func (t *timerScheduler) Schedule(key string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.timers[key]; ok {
		prev.Stop()
	}
	t.timers[key] = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, key)
		t.mu.Unlock()
		fn()
	})
}

func (t *timerScheduler) Cancel(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.timers[key]; ok {
		prev.Stop()
		delete(t.timers, key)
	}
}

// OnPromptAdded decides whether the session is due for a progress
// analysis and either runs it or arms the per-session debounce timer.
// Repeated calls inside the debounce window collapse into one run.
func (s *Service) OnPromptAdded(sessionID string) {
	s.store.RLockGraph()
	sess, _ := s.store.GetSession(sessionID)
	if sess == nil {
		s.store.RUnlockGraph()
		return
	}
	count := len(sess.Prompts)
	progress := sess.GoalProgress
	s.store.RUnlockGraph()

	cfg := s.store.Config()

	s.mu.Lock()
	tr := s.tracking[sessionID]
	s.mu.Unlock()

	due := false
	switch {
	case tr == nil && progress == 0:
		due = count >= cfg.MinPromptsForProgressAnalysis
	case tr == nil:
		// Progress from a prior run but no tracking yet (state was loaded);
		// treat the load point as the last analysis.
		due = count >= cfg.ProgressAnalysisInterval
	default:
		due = count-tr.lastCount >= cfg.ProgressAnalysisInterval
	}
	if !due {
		return
	}

	debounce := time.Duration(cfg.ProgressAnalysisDebounceMs) * time.Millisecond
	now := s.Now()

	if tr != nil {
		if elapsed := now.Sub(tr.lastAt); elapsed < debounce {
			// Still inside the window: arm (or re-arm) the timer so exactly
			// one run fires at lastAt+debounce.
			s.sched.Schedule(sessionID, debounce-elapsed, func() {
				s.runAnalysis(sessionID)
			})
			return
		}
	}
	s.runAnalysis(sessionID)
}

// runAnalysis performs one progress analysis and records its tracking.
func (s *Service) runAnalysis(sessionID string) {
	if _, err := s.AnalyzeGoalProgress(context.Background(), sessionID); err != nil {
		logf("progress analysis for %s failed: %v", sessionID, err)
	}
}

// AnalyzeGoalProgress runs the analyzer against the session (the active
// one when id is empty) and applies its result: goalProgress always, the
// session title only when no custom name is set. A session with nothing
// to judge reports zero progress without mutating anything; with no
// analyzer bound nothing happens and nil is returned.
func (s *Service) AnalyzeGoalProgress(ctx context.Context, id string) (*ProgressResult, error) {
	s.store.RLockGraph()
	sess, err := s.resolveSession(id)
	if err != nil {
		s.store.RUnlockGraph()
		return nil, err
	}

	// Detach a copy so the analyzer reads stable state without holding
	// the graph lock across a model call.
	snap := *sess
	snap.Prompts = append([]*model.Prompt(nil), sess.Prompts...)
	snap.Responses = append([]*model.Response(nil), sess.Responses...)
	promptCount := len(snap.Prompts)
	customName := sess.CustomName
	s.store.RUnlockGraph()

	if promptCount == 0 {
		return &ProgressResult{Progress: 0, Reasoning: "no prompts to judge yet"}, nil
	}
	if s.analyzer == nil {
		return nil, nil
	}

	res, err := s.analyzer.AnalyzeProgress(ctx, &snap, snap.Goal)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}

	upd := session.SessionUpdate{GoalProgress: &res.Progress}
	if res.SessionTitle != "" && customName == "" {
		title := res.SessionTitle
		upd.CustomName = &title
	}
	if err := s.mgr.UpdateSession(snap.ID, upd); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.tracking[snap.ID] = &analysisTracking{lastCount: promptCount, lastAt: s.Now()}
	s.mu.Unlock()

	return res, nil
}

// AnalyzeTopSessionsOnLoad ranks every loaded session, takes the top
// few, and runs a progress analysis on the ones worth judging. Sessions
// with enough prompts rank first, then active ones, then by recency.
// The cap applies before filtering, so an ineligible high-ranked session
// consumes one of the slots rather than pulling a lower-ranked one in.
func (s *Service) AnalyzeTopSessionsOnLoad(ctx context.Context) {
	if s.analyzer == nil {
		return
	}
	cfg := s.store.Config()

	s.store.RLockGraph()
	var candidates []*model.Session
	for _, proj := range s.store.AllProjects() {
		candidates = append(candidates, proj.Sessions...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		aEnough := len(a.Prompts) >= cfg.MinPromptsForProgressAnalysis
		bEnough := len(b.Prompts) >= cfg.MinPromptsForProgressAnalysis
		if aEnough != bEnough {
			return aEnough
		}
		if a.IsActive != b.IsActive {
			return a.IsActive
		}
		return a.LastActivity.After(b.LastActivity)
	})
	if len(candidates) > topSessionsOnLoad {
		candidates = candidates[:topSessionsOnLoad]
	}

	var picked []string
	for _, sess := range candidates {
		// The transcript adapter is the only source that fills prompt
		// bodies into the store, so only claude_code sessions carry
		// anything to judge here.
		if sess.Platform != model.PlatformClaudeCode {
			continue
		}
		if sess.GoalProgress != 0 {
			continue // already analyzed in a prior run
		}
		if len(sess.Prompts) < cfg.MinPromptsForProgressAnalysis {
			continue
		}
		picked = append(picked, sess.ID)
	}
	s.store.RUnlockGraph()

	debounce := time.Duration(cfg.ProgressAnalysisDebounceMs) * time.Millisecond
	for _, id := range picked {
		s.mu.Lock()
		tr := s.tracking[id]
		s.mu.Unlock()
		if tr != nil && s.Now().Sub(tr.lastAt) < debounce {
			continue
		}
		if _, err := s.AnalyzeGoalProgress(ctx, id); err != nil {
			logf("startup progress analysis for %s failed: %v", id, err)
		}
	}
}

// Shutdown cancels every pending debounce timer.
func (s *Service) Shutdown() {
	s.mu.Lock()
	keys := make([]string, 0, len(s.tracking))
	for k := range s.tracking {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	for _, k := range keys {
		s.sched.Cancel(k)
	}
}
