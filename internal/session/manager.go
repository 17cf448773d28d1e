// Package session implements the session lifecycle engine: creation,
// matching, staleness rollover, switching, renaming, deletion, and
// correlation of sessions to external source session identifiers, plus
// prompt and response management within sessions.
package session

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/project"
	"github.com/anthropic/worklog/internal/store"
)

// ErrNoWorkspace is returned when a prompt arrives and no project can be
// detected for it.
var ErrNoWorkspace = errors.New("no workspace detectable for prompt")

// ErrNoActiveSession is returned by goal edits that require an active session.
var ErrNoActiveSession = errors.New("no active session")

// Manager owns all session mutations. Entities live in the entity store;
// the manager serializes struct mutation through the store's graph lock
// and holds no state of its own beyond wiring, a clock, and the events
// queued inside the current critical section.
type Manager struct {
	store    *store.Store
	bus      *events.Bus
	detector *project.Detector

	// Now is the clock; tests replace it to drive staleness.
	Now func() time.Time

	// pending collects events queued while the graph write lock is held.
	// They are published after the lock is released so subscribers can
	// take the read lock or call back into the manager.
	pending []events.Event
}

// NewManager wires a Manager to the store, event bus, and project detector.
func NewManager(st *store.Store, bus *events.Bus, det *project.Detector) *Manager {
	return &Manager{
		store:    st,
		bus:      bus,
		detector: det,
		Now:      time.Now,
	}
}

// maxInactivity returns the configured staleness window.
func (m *Manager) maxInactivity() time.Duration {
	return time.Duration(m.store.Config().MaxInactivityMinutes) * time.Minute
}

// IsSessionStillActive reports whether the session is within the
// inactivity window.
func (m *Manager) IsSessionStillActive(s *model.Session) bool {
	return m.Now().Sub(s.LastActivity) <= m.maxInactivity()
}

// begin opens a mutation: it takes the graph write lock.
func (m *Manager) begin() {
	m.store.LockGraph()
}

// end closes a mutation: it releases the graph write lock and publishes
// the events queued during the critical section, in queue order.
func (m *Manager) end() {
	evs := m.pending
	m.pending = nil
	m.store.UnlockGraph()
	for _, ev := range evs {
		m.bus.Emit(ev)
	}
}

// queue records a lifecycle event, stamped with the manager's clock, for
// publication when the current mutation ends.
func (m *Manager) queue(ev events.Event) {
	ev.Timestamp = m.Now()
	m.pending = append(m.pending, ev)
}

// endSession marks a stale session inactive and announces it.
func (m *Manager) endSession(s *model.Session) {
	s.IsActive = false
	m.queue(events.Event{Kind: events.SessionEnded, SessionID: s.ID, ProjectID: s.ProjectID})
}

// GetOrCreateSession resolves the session for (projectID, platform,
// sourceSessionID). An existing match inside the inactivity window is
// returned as-is; a stale match is ended and replaced by a fresh session
// carrying the same source session id.
func (m *Manager) GetOrCreateSession(projectID string, platform model.Platform, sourceSessionID string) (*model.Session, error) {
	m.begin()
	defer m.end()
	return m.getOrCreateSession(projectID, platform, sourceSessionID)
}

// getOrCreateSession is GetOrCreateSession under an already-held write
// lock.
func (m *Manager) getOrCreateSession(projectID string, platform model.Platform, sourceSessionID string) (*model.Session, error) {
	proj := m.store.GetProject(projectID)
	if proj == nil {
		return nil, fmt.Errorf("%w: %s", store.ErrProjectNotFound, projectID)
	}

	if sourceSessionID != "" {
		for _, s := range proj.Sessions {
			if s.Platform != platform || s.SourceSessionID() != sourceSessionID {
				continue
			}
			if m.IsSessionStillActive(s) {
				return s, nil
			}
			m.endSession(s)
			break // stale: fall through to create with the same source id
		}
	} else {
		// No source id: reuse the newest active session for the platform
		// that has no stored source correlation of its own.
		var newest *model.Session
		for _, s := range proj.Sessions {
			if s.Platform != platform || !s.IsActive {
				continue
			}
			if !isGenerated(s.SourceSessionID()) {
				continue
			}
			if newest == nil || s.LastActivity.After(newest.LastActivity) {
				newest = s
			}
		}
		if newest != nil {
			if m.IsSessionStillActive(newest) {
				return newest, nil
			}
			m.endSession(newest)
		}
	}

	return m.createSession(proj, platform, sourceSessionID), nil
}

// createSession appends a fresh session to the project, synthesizing a
// source session id when the source did not supply one.
func (m *Manager) createSession(proj *model.Project, platform model.Platform, sourceSessionID string) *model.Session {
	now := m.Now()
	if sourceSessionID == "" {
		sourceSessionID = "generated-" + uuid.NewString()
	}

	s := &model.Session{
		ID:           "session-" + uuid.NewString(),
		ProjectID:    proj.ID,
		Platform:     platform,
		StartTime:    now,
		LastActivity: now,
		IsActive:     true,
	}
	s.SetMetadata(model.MetaSourceSessionID, sourceSessionID)

	proj.Sessions = append(proj.Sessions, s)
	proj.TotalSessions++
	proj.LastActivity = now

	m.queue(events.Event{Kind: events.SessionCreated, SessionID: s.ID, ProjectID: proj.ID})
	m.store.Persist()
	return s
}

// isGenerated reports whether a source session id was synthesized locally
// rather than supplied by an external source.
func isGenerated(sourceSessionID string) bool {
	return sourceSessionID == "" || strings.HasPrefix(sourceSessionID, "generated-")
}

// SwitchSession makes the session the active one and clears its unread
// flag. Idempotent when already active.
func (m *Manager) SwitchSession(id string) error {
	m.begin()
	defer m.end()

	s, proj := m.store.GetSession(id)
	if s == nil {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}

	alreadyActive := m.store.ActiveSessionID() == id && !s.HasUnreadActivity
	m.store.SetActive(proj.ID, s.ID)
	s.HasUnreadActivity = false

	if !alreadyActive {
		m.queue(events.Event{Kind: events.SessionUpdated, SessionID: s.ID, ProjectID: proj.ID})
		m.store.Persist()
	}
	return nil
}

// MarkSessionAsRead clears the unread flag without switching. Idempotent.
func (m *Manager) MarkSessionAsRead(id string) error {
	m.begin()
	defer m.end()

	s, proj := m.store.GetSession(id)
	if s == nil {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}
	if !s.HasUnreadActivity {
		return nil
	}
	s.HasUnreadActivity = false
	m.queue(events.Event{Kind: events.SessionUpdated, SessionID: s.ID, ProjectID: proj.ID})
	m.store.Persist()
	return nil
}

// SessionUpdate is the shallow-merge patch accepted by UpdateSession.
// Identity and collection fields (id, projectId, prompts, responses) are
// deliberately absent so invariants cannot be violated through updates.
type SessionUpdate struct {
	CustomName        *string
	IsActive          *bool
	HasUnreadActivity *bool
	GoalProgress      *int
	LastActivity      *time.Time
}

// UpdateSession applies the patch and emits session_updated.
func (m *Manager) UpdateSession(id string, upd SessionUpdate) error {
	m.begin()
	defer m.end()

	s, proj := m.store.GetSession(id)
	if s == nil {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}

	if upd.CustomName != nil {
		s.CustomName = *upd.CustomName
	}
	if upd.IsActive != nil {
		s.IsActive = *upd.IsActive
	}
	if upd.HasUnreadActivity != nil {
		s.HasUnreadActivity = *upd.HasUnreadActivity
	}
	if upd.GoalProgress != nil {
		s.GoalProgress = clampProgress(*upd.GoalProgress)
	}
	if upd.LastActivity != nil {
		s.LastActivity = *upd.LastActivity
	}

	m.queue(events.Event{Kind: events.SessionUpdated, SessionID: s.ID, ProjectID: proj.ID})
	m.store.Persist()
	return nil
}

// DeleteSession removes the session, fixes project counters, and repoints
// or clears the active pointers when they referenced it.
func (m *Manager) DeleteSession(id string) error {
	m.begin()
	defer m.end()

	s, proj := m.store.GetSession(id)
	if s == nil {
		return fmt.Errorf("%w: %s", store.ErrSessionNotFound, id)
	}

	for i, candidate := range proj.Sessions {
		if candidate.ID == id {
			proj.Sessions = append(proj.Sessions[:i], proj.Sessions[i+1:]...)
			break
		}
	}
	proj.TotalSessions--
	proj.TotalPrompts -= s.PromptCount

	if m.store.ActiveSessionID() == id {
		if len(proj.Sessions) > 0 {
			replacement := proj.Sessions[0]
			m.store.SetActive(proj.ID, replacement.ID)
		} else {
			m.store.SetActive("", "")
		}
	}

	m.queue(events.Event{Kind: events.SessionDeleted, SessionID: id, ProjectID: proj.ID})
	m.store.Persist()
	return nil
}

// SetGoal sets the active session's goal, stamping goalSetAt and clearing
// any prior completion.
func (m *Manager) SetGoal(text string) error {
	m.begin()
	defer m.end()

	s, proj := m.store.ActiveSession()
	if s == nil {
		return ErrNoActiveSession
	}
	now := m.Now()
	s.Goal = text
	s.GoalSetAt = &now
	s.GoalCompletedAt = nil
	m.queue(events.Event{Kind: events.GoalSet, SessionID: s.ID, ProjectID: proj.ID, Data: text})
	m.store.Persist()
	return nil
}

// CompleteGoal marks the active session's goal completed.
func (m *Manager) CompleteGoal() error {
	m.begin()
	defer m.end()

	s, proj := m.store.ActiveSession()
	if s == nil {
		return ErrNoActiveSession
	}
	if s.Goal == "" {
		return errors.New("active session has no goal to complete")
	}
	now := m.Now()
	s.GoalCompletedAt = &now
	m.queue(events.Event{Kind: events.GoalCompleted, SessionID: s.ID, ProjectID: proj.ID, Data: s.Goal})
	m.store.Persist()
	return nil
}

// ClearGoal unsets every goal field on the active session.
func (m *Manager) ClearGoal() error {
	m.begin()
	defer m.end()

	s, _ := m.store.ActiveSession()
	if s == nil {
		return ErrNoActiveSession
	}
	s.Goal = ""
	s.GoalSetAt = nil
	s.GoalCompletedAt = nil
	s.GoalProgress = 0
	m.store.Persist()
	return nil
}

// Store exposes the underlying entity store for read-only collaborators.
func (m *Manager) Store() *store.Store {
	return m.store
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// logf is the package's operational logger.
func logf(format string, args ...any) {
	log.Printf("session: "+format, args...)
}
