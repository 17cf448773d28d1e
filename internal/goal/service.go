package goal

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/session"
	"github.com/anthropic/worklog/internal/store"
)

// ProgressResult is what a progress analyzer reports for one session.
type ProgressResult struct {
	Progress     int    `json:"progress"`
	Reasoning    string `json:"reasoning,omitempty"`
	SessionTitle string `json:"sessionTitle,omitempty"`
}

// ProgressAnalyzer judges goal progress for a session from its recent
// activity. Implementations typically call a language model.
type ProgressAnalyzer interface {
	AnalyzeProgress(ctx context.Context, s *model.Session, goal string) (*ProgressResult, error)
}

// Scheduler arms one named timer per key, replacing any pending timer
// for the same key. The real implementation wraps time.AfterFunc; tests
// substitute a manual one.
type Scheduler interface {
	Schedule(key string, d time.Duration, fn func())
	Cancel(key string)
}

// Service coordinates goal inference and debounced progress analysis.
// The language model capability and the progress analyzer may both be
// nil; everything degrades to pattern inference or a no-op.
type Service struct {
	store    *store.Store
	mgr      *session.Manager
	lm       llm.Capability
	analyzer ProgressAnalyzer
	sched    Scheduler

	// Now is the clock; tests replace it.
	Now func() time.Time

	mu       sync.Mutex
	tracking map[string]*analysisTracking
}

// analysisTracking records the last completed analysis per session so
// triggering and debouncing are decided against it.
type analysisTracking struct {
	lastCount int
	lastAt    time.Time
}

// NewService wires a goal service. analyzer and lm may be nil.
func NewService(st *store.Store, mgr *session.Manager, lm llm.Capability, analyzer ProgressAnalyzer) *Service {
	return &Service{
		store:    st,
		mgr:      mgr,
		lm:       lm,
		analyzer: analyzer,
		sched:    newTimerScheduler(),
		Now:      time.Now,
		tracking: make(map[string]*analysisTracking),
	}
}

// SetScheduler replaces the timer scheduler, for tests.
func (s *Service) SetScheduler(sched Scheduler) {
	s.sched = sched
}

// Status reports the goal state of a session.
type Status struct {
	HasGoal             bool       `json:"hasGoal"`
	Goal                string     `json:"goal,omitempty"`
	SetAt               *time.Time `json:"setAt,omitempty"`
	Progress            int        `json:"progress"`
	IsCompleted         bool       `json:"isCompleted"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	PromptsSinceGoalSet int        `json:"promptsSinceGoalSet"`
}

// GoalStatus reports the goal state for the session, or for the active
// session when id is empty.
func (s *Service) GoalStatus(id string) (*Status, error) {
	s.store.RLockGraph()
	defer s.store.RUnlockGraph()

	sess, err := s.resolveSession(id)
	if err != nil {
		return nil, err
	}

	st := &Status{
		HasGoal:     sess.Goal != "",
		Goal:        sess.Goal,
		SetAt:       sess.GoalSetAt,
		Progress:    sess.GoalProgress,
		IsCompleted: sess.GoalCompletedAt != nil,
		CompletedAt: sess.GoalCompletedAt,
	}
	if sess.GoalSetAt != nil {
		for _, p := range sess.Prompts {
			if !p.Timestamp.Before(*sess.GoalSetAt) {
				st.PromptsSinceGoalSet++
			}
		}
	}
	return st, nil
}

func (s *Service) resolveSession(id string) (*model.Session, error) {
	if id == "" {
		sess, _ := s.store.ActiveSession()
		if sess == nil {
			return nil, session.ErrNoActiveSession
		}
		return sess, nil
	}
	sess, _ := s.store.GetSession(id)
	if sess == nil {
		return nil, store.ErrSessionNotFound
	}
	return sess, nil
}

// inferenceSchema is the JSON shape the model is asked to return.
const inferenceSchema = `{"goal": "<short goal phrase>", "theme": "<theme name>", "confidence": <0-100>, "reasoning": "<one sentence>"}`

const inferenceSystemPrompt = `You infer the developer's working goal from their recent prompts to a coding assistant.
Respond with ONLY a JSON object in exactly this shape:
` + inferenceSchema + `
The goal must be a short imperative phrase (e.g. "Fix AuthForm"). Confidence is 0-100.`

// llmInference mirrors the schema the model is instructed to emit.
type llmInference struct {
	Goal       string  `json:"goal"`
	Theme      string  `json:"theme"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// InferGoal suggests a goal for the session from its recent prompts,
// preferring the language model and falling back to pattern inference on
// any failure. Returns nil when nothing confident can be inferred.
func (s *Service) InferGoal(ctx context.Context, id string) (*Inference, error) {
	s.store.RLockGraph()
	sess, err := s.resolveSession(id)
	if err != nil {
		s.store.RUnlockGraph()
		return nil, err
	}

	// Detach a copy so the model call runs without the graph lock.
	snap := *sess
	snap.Prompts = append([]*model.Prompt(nil), sess.Prompts...)
	s.store.RUnlockGraph()

	if len(snap.Prompts) == 0 {
		return nil, nil
	}

	if inf := s.inferWithLLM(ctx, &snap); inf != nil {
		return inf, nil
	}
	return InferFromPatterns(snap.Prompts), nil
}

// inferWithLLM asks the bound capability for a goal. Any failure, parse
// miss, or low confidence returns nil so the caller falls back.
func (s *Service) inferWithLLM(ctx context.Context, sess *model.Session) *Inference {
	if s.lm == nil || !s.lm.IsInitialized() {
		return nil
	}

	recent := lastN(sess.Prompts, promptsAnalyzed)
	var b strings.Builder
	b.WriteString("Recent prompts, oldest first:\n")
	for _, p := range recent {
		b.WriteString("- ")
		b.WriteString(p.TruncatedText)
		b.WriteString("\n")
	}

	res, err := s.lm.GenerateCompletion(ctx, llm.Request{
		SystemPrompt: inferenceSystemPrompt,
		Prompt:       b.String(),
		Temperature:  0.3,
		MaxTokens:    200,
	})
	if err != nil {
		logf("goal inference via %s failed (%s), using patterns: %v",
			providerName(s.lm), llm.ClassifyError(err), err)
		return nil
	}

	raw := extractJSONObject(res.Text)
	if raw == "" {
		return nil
	}
	var parsed llmInference
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil || parsed.Goal == "" {
		return nil
	}

	confidence := parsed.Confidence / 100
	if confidence < minConfidence {
		return nil
	}
	return &Inference{
		SuggestedGoal:   parsed.Goal,
		Confidence:      confidence,
		DetectedTheme:   parsed.Theme,
		PromptsAnalyzed: len(recent),
	}
}

// extractJSONObject returns the first balanced {...} block in text.
func extractJSONObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}
	return ""
}

func providerName(lm llm.Capability) string {
	if info := lm.ActiveProviderInfo(); info != nil {
		return info.Type
	}
	return "none"
}

func logf(format string, args ...any) {
	log.Printf("goal: "+format, args...)
}
