package session

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/model"
)

// PromptInput is the normalized prompt-detected event from an adapter.
type PromptInput struct {
	ID              string
	Text            string
	Timestamp       time.Time
	SourceID        string
	SourceSessionID string
}

// AddPrompt appends a prompt to the active session, creating project and
// session on demand. Returns ErrNoWorkspace when no project is detectable.
func (m *Manager) AddPrompt(text string, score float64, breakdown *model.ScoreBreakdown, timestamp time.Time) (*model.Prompt, error) {
	m.begin()
	defer m.end()

	s, proj := m.store.ActiveSession()

	if s == nil {
		path, name, ok := m.detector.DetectWorkspace()
		if !ok {
			return nil, ErrNoWorkspace
		}
		p := m.getOrCreateProject(path, name)
		created, err := m.getOrCreateSession(p.ID, m.detector.DetectPlatform(), "")
		if err != nil {
			return nil, err
		}
		m.store.SetActive(p.ID, created.ID)
		s, proj = created, p
	} else if !m.IsSessionStillActive(s) {
		// Stale active session: roll over to a replacement on the same
		// project and platform.
		m.endSession(s)
		replacement := m.createSession(proj, s.Platform, "")
		m.store.SetActive(proj.ID, replacement.ID)
		s = replacement
	}

	return m.appendPrompt(s, proj, text, score, breakdown, timestamp, false), nil
}

// OnPromptDetected handles an adapter-delivered prompt. A source session
// id is required; without one the prompt is dropped and "" returned.
func (m *Manager) OnPromptDetected(in PromptInput) string {
	if in.SourceSessionID == "" {
		return ""
	}

	m.begin()
	defer m.end()

	s, err := m.syncFromSource(SyncInput{
		SourceID:        in.SourceID,
		SourceSessionID: in.SourceSessionID,
	})
	if err != nil {
		logf("prompt detected but session resolution failed: %v", err)
		return ""
	}
	proj := m.store.GetProject(s.ProjectID)

	unread := m.store.ActiveSessionID() != s.ID
	p := m.appendPrompt(s, proj, in.Text, 0, nil, in.Timestamp, unread)
	return p.ID
}

// appendPrompt performs the shared append: truncation, counters, activity
// timestamps, persistence, and the prompt_added event. The event fires
// after counters are updated and the snapshot write has been issued.
func (m *Manager) appendPrompt(s *model.Session, proj *model.Project, text string, score float64, breakdown *model.ScoreBreakdown, timestamp time.Time, unread bool) *model.Prompt {
	if timestamp.IsZero() {
		timestamp = m.Now()
	}

	p := &model.Prompt{
		ID:            "prompt-" + uuid.NewString(),
		SessionID:     s.ID,
		Text:          text,
		TruncatedText: model.Truncate(text),
		Timestamp:     timestamp,
		Score:         score,
		Breakdown:     breakdown,
	}

	s.Prompts = append(s.Prompts, p)
	s.PromptCount++
	s.LastActivity = m.Now()
	if unread {
		s.HasUnreadActivity = true
	}
	proj.TotalPrompts++
	proj.LastActivity = s.LastActivity

	m.store.Persist()
	m.queue(events.Event{Kind: events.PromptAdded, SessionID: s.ID, ProjectID: proj.ID, PromptID: p.ID, Data: p.Score})
	return p
}

// UpdatePromptScore updates score fields in place and recomputes the
// owning session's average score. Missing prompt ids are a no-op.
func (m *Manager) UpdatePromptScore(promptID string, score float64, breakdown *model.ScoreBreakdown, enhancedText string, enhancedScore *float64) {
	m.begin()
	defer m.end()

	for _, proj := range m.store.AllProjects() {
		for _, s := range proj.Sessions {
			for _, p := range s.Prompts {
				if p.ID != promptID {
					continue
				}
				p.Score = score
				if breakdown != nil {
					p.Breakdown = breakdown
				}
				if enhancedText != "" {
					p.EnhancedText = enhancedText
				}
				if enhancedScore != nil {
					p.EnhancedScore = enhancedScore
				}
				recomputeAverage(s)
				m.store.Persist()
				return
			}
		}
	}
}

// recomputeAverage refreshes session.averageScore from its prompts.
func recomputeAverage(s *model.Session) {
	if len(s.Prompts) == 0 {
		s.AverageScore = nil
		return
	}
	sum := 0.0
	for _, p := range s.Prompts {
		sum += p.Score
	}
	avg := sum / float64(len(s.Prompts))
	s.AverageScore = &avg
}

// PromptsQuery selects a page of prompts from one session.
type PromptsQuery struct {
	SessionID string
	Offset    int
	Limit     int
}

// PromptsPage is a pagination result, ordered newest-first.
type PromptsPage struct {
	Prompts []*model.Prompt `json:"prompts"`
	Total   int             `json:"total"`
	HasMore bool            `json:"hasMore"`
	Offset  int             `json:"offset"`
	Limit   int             `json:"limit"`
}

// GetPrompts returns a page of the session's prompts ordered strictly by
// timestamp descending; insertion order breaks ties. Out-of-order arrivals
// are accepted on write, so ordering is established here on read.
func (m *Manager) GetPrompts(q PromptsQuery) PromptsPage {
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	m.store.RLockGraph()
	defer m.store.RUnlockGraph()

	page := PromptsPage{Offset: q.Offset, Limit: q.Limit}
	s, _ := m.store.GetSession(q.SessionID)
	if s == nil {
		return page
	}

	sorted := make([]*model.Prompt, len(s.Prompts))
	copy(sorted, s.Prompts)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})

	page.Total = len(sorted)
	if q.Offset < len(sorted) {
		end := q.Offset + q.Limit
		if end > len(sorted) {
			end = len(sorted)
		}
		page.Prompts = sorted[q.Offset:end]
		page.HasMore = end < len(sorted)
	}
	return page
}
