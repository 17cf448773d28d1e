package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/worklog/internal/model"
)

// ResponseInput is the normalized captured-response event from an adapter.
type ResponseInput struct {
	ID            string
	PromptID      string
	Timestamp     time.Time
	Source        string
	Text          string
	Success       bool
	Reason        string
	FilesModified []string
	ToolCalls     []model.ToolCall
	ToolResults   []string
}

// AddResponse appends a response to the active session, optionally linked
// to a specific prompt. Returns nil when there is no active session.
func (m *Manager) AddResponse(in ResponseInput) *model.Response {
	m.begin()
	defer m.end()

	s, proj := m.store.ActiveSession()
	if s == nil {
		logf("response dropped: no active session")
		return nil
	}

	id := in.ID
	if id == "" {
		id = "response-" + uuid.NewString()
	}
	ts := in.Timestamp
	if ts.IsZero() {
		ts = m.Now()
	}

	r := &model.Response{
		ID:            id,
		PromptID:      in.PromptID,
		Timestamp:     ts,
		Source:        in.Source,
		Text:          in.Text,
		Success:       in.Success,
		Reason:        in.Reason,
		FilesModified: in.FilesModified,
		ToolCalls:     in.ToolCalls,
		ToolResults:   in.ToolResults,
	}

	s.Responses = append(s.Responses, r)
	s.LastActivity = m.Now()
	proj.LastActivity = s.LastActivity
	m.store.Persist()
	return r
}

// GetLastInteractions walks the active session's tail pairing each
// response to the nearest preceding unpaired prompt. Prompts with no
// response appear with a nil Response. Returns the most recent n pairs,
// newest first.
func (m *Manager) GetLastInteractions(n int) []model.Interaction {
	m.store.RLockGraph()
	defer m.store.RUnlockGraph()

	s, _ := m.store.ActiveSession()
	if s == nil || n <= 0 {
		return nil
	}

	// Pair each response to the closest earlier prompt that is not yet
	// taken, preferring an explicit promptId link.
	paired := make(map[string]*model.Response, len(s.Responses))
	taken := make(map[string]bool, len(s.Responses))

	for _, r := range s.Responses {
		if r.PromptID != "" {
			if !taken[r.PromptID] {
				paired[r.PromptID] = r
				taken[r.PromptID] = true
			}
			continue
		}
		var best *model.Prompt
		for _, p := range s.Prompts {
			if taken[p.ID] || p.Timestamp.After(r.Timestamp) {
				continue
			}
			if best == nil || p.Timestamp.After(best.Timestamp) {
				best = p
			}
		}
		if best != nil {
			paired[best.ID] = r
			taken[best.ID] = true
		}
	}

	interactions := make([]model.Interaction, 0, len(s.Prompts))
	for _, p := range s.Prompts {
		interactions = append(interactions, model.Interaction{
			Prompt:   p,
			Response: paired[p.ID],
		})
	}

	// Newest first, capped at n.
	out := make([]model.Interaction, 0, n)
	for i := len(interactions) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, interactions[i])
	}
	return out
}
