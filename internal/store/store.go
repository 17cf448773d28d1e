// Package store implements the entity store: the in-memory project map
// that exclusively owns all projects, sessions, prompts, and responses,
// persisted as a single snapshot through the durable KV collaborator.
//
// Two locks protect the state. An internal mutex guards the project map,
// the active pointers, and the config; it is never held across calls out
// of the store. The exported graph lock guards the entity structs
// themselves: the session manager holds the write side across every
// struct mutation, and concurrent readers (IPC handlers, summaries,
// stats, goal analysis) hold the read side while traversing sessions.
// Store methods that walk into sessions do not take the graph lock on
// their own; the caller holds it.
package store

import (
	"errors"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
)

// Sentinel errors for programmer-error and degraded-mode conditions.
var (
	ErrStorageUnavailable = errors.New("storage unavailable: no KV collaborator bound")
	ErrProjectNotFound    = errors.New("project not found")
	ErrSessionNotFound    = errors.New("session not found")
)

// DefaultSidebarWidth is the fallback UI sidebar width.
const DefaultSidebarWidth = 240

// Store holds the entity graph and its persistence wiring.
type Store struct {
	mu      sync.Mutex
	graphMu sync.RWMutex

	kv       kv.KV
	projects map[string]*model.Project

	activeSessionID string
	activeProjectID string
	cfg             model.SnapshotConfig

	// Now is the clock; tests replace it.
	Now func() time.Time
}

// New creates a Store bound to the given KV collaborator. A nil KV is
// permitted; the store then serves from memory and reports degraded saves.
func New(store kv.KV, cfg model.SnapshotConfig) *Store {
	if cfg.MaxInactivityMinutes <= 0 {
		cfg.MaxInactivityMinutes = 120
	}
	if cfg.MinPromptsForProgressAnalysis <= 0 {
		cfg.MinPromptsForProgressAnalysis = 2
	}
	if cfg.ProgressAnalysisInterval <= 0 {
		cfg.ProgressAnalysisInterval = 3
	}
	if cfg.ProgressAnalysisDebounceMs <= 0 {
		cfg.ProgressAnalysisDebounceMs = 30000
	}
	return &Store{
		kv:       store,
		projects: make(map[string]*model.Project),
		cfg:      cfg,
		Now:      time.Now,
	}
}

// LockGraph acquires the entity-graph write lock. The session manager
// holds it across struct mutation and the snapshot write that follows.
func (s *Store) LockGraph() { s.graphMu.Lock() }

// UnlockGraph releases the entity-graph write lock.
func (s *Store) UnlockGraph() { s.graphMu.Unlock() }

// RLockGraph acquires the shared entity-graph read lock. Readers hold it
// while traversing sessions or reading entity fields.
func (s *Store) RLockGraph() { s.graphMu.RLock() }

// RUnlockGraph releases the shared entity-graph read lock.
func (s *Store) RUnlockGraph() { s.graphMu.RUnlock() }

// Config returns the snapshot-carried configuration.
func (s *Store) Config() model.SnapshotConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// GetProject returns the project with the given id, or nil.
func (s *Store) GetProject(id string) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.projects[id]
}

// FindProjectByPath returns the project whose normalized path matches,
// compared case-insensitively.
func (s *Store) FindProjectByPath(path string) *model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findProjectByPathLocked(path)
}

func (s *Store) findProjectByPathLocked(path string) *model.Project {
	canon := model.CanonicalPath(path)
	for _, p := range s.projects {
		if model.CanonicalPath(p.Path) == canon {
			return p
		}
	}
	return nil
}

// AllProjects returns every project, sorted by last activity descending.
func (s *Store) AllProjects() []*model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// PutProject inserts or replaces a project.
func (s *Store) PutProject(p *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[p.ID] = p
}

// RemoveProject deletes a project outright. Administrative use only.
func (s *Store) RemoveProject(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.projects, id)
}

// GetSession locates a session by id across all projects. Returns the
// session and its owning project, or nils.
func (s *Store) GetSession(id string) (*model.Session, *model.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getSessionLocked(id)
}

func (s *Store) getSessionLocked(id string) (*model.Session, *model.Project) {
	for _, p := range s.projects {
		for _, sess := range p.Sessions {
			if sess.ID == id {
				return sess, p
			}
		}
	}
	return nil, nil
}

// FindSessionBySourceID locates a session by its source session id across
// every project. Sessions created under a different project are found too,
// so adapters never duplicate externally-grouped chats.
func (s *Store) FindSessionBySourceID(sourceSessionID string) (*model.Session, *model.Project) {
	if sourceSessionID == "" {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		for _, sess := range p.Sessions {
			if sess.SourceSessionID() == sourceSessionID {
				return sess, p
			}
		}
	}
	return nil, nil
}

// SessionFilter narrows Sessions results. Zero values mean "any".
type SessionFilter struct {
	ProjectID  string
	Platform   model.Platform
	ActiveOnly bool
	Since      time.Time
}

// Sessions returns sessions matching the filter, newest activity first.
func (s *Store) Sessions(f SessionFilter) []*model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Session
	for _, p := range s.projects {
		if f.ProjectID != "" && p.ID != f.ProjectID {
			continue
		}
		for _, sess := range p.Sessions {
			if f.Platform != "" && sess.Platform != f.Platform {
				continue
			}
			if f.ActiveOnly && !sess.IsActive {
				continue
			}
			if !f.Since.IsZero() && sess.LastActivity.Before(f.Since) {
				continue
			}
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActivity.After(out[j].LastActivity)
	})
	return out
}

// ActiveSessionID returns the id of the session currently receiving prompts.
func (s *Store) ActiveSessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeSessionID
}

// ActiveProjectID returns the id of the in-focus project.
func (s *Store) ActiveProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeProjectID
}

// ActiveSession returns the active session and its project, or nils.
func (s *Store) ActiveSession() (*model.Session, *model.Project) {
	s.mu.Lock()
	id := s.activeSessionID
	s.mu.Unlock()
	if id == "" {
		return nil, nil
	}
	return s.GetSession(id)
}

// SetActive updates the active pointers.
func (s *Store) SetActive(projectID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeProjectID = projectID
	s.activeSessionID = sessionID
}

// ClearActiveIf nulls the active pointers when they reference sessionID.
func (s *Store) ClearActiveIf(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeSessionID == sessionID {
		s.activeSessionID = ""
		s.activeProjectID = ""
	}
}

// SaveState serializes the full snapshot and writes it under the
// sessionState key. Returns ErrStorageUnavailable when no KV is bound.
func (s *Store) SaveState() error {
	s.mu.Lock()
	snap := s.snapshotLocked()
	store := s.kv
	s.mu.Unlock()

	if store == nil {
		return ErrStorageUnavailable
	}

	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return store.Set(kv.KeySessionState, data)
}

// Persist is the fire-and-degrade save used by mutators: failures are
// logged and in-memory state continues to serve.
func (s *Store) Persist() {
	if err := s.SaveState(); err != nil {
		log.Printf("store: degraded mode, snapshot not persisted: %v", err)
	}
}

func (s *Store) snapshotLocked() *model.Snapshot {
	projects := make([]*model.Project, 0, len(s.projects))
	for _, p := range s.projects {
		projects = append(projects, p)
	}
	// Stable order keeps snapshots diffable.
	sort.Slice(projects, func(i, j int) bool { return projects[i].ID < projects[j].ID })

	return &model.Snapshot{
		Projects:        projects,
		ActiveSessionID: s.activeSessionID,
		ActiveProjectID: s.activeProjectID,
		Config:          s.cfg,
		LastUpdated:     s.Now(),
	}
}

// SidebarWidth returns the persisted UI sidebar width, defaulting to 240.
func (s *Store) SidebarWidth() int {
	if s.kv == nil {
		return DefaultSidebarWidth
	}
	data, ok, err := s.kv.Get(kv.KeySidebarWidth)
	if err != nil || !ok {
		return DefaultSidebarWidth
	}
	w, err := strconv.Atoi(string(data))
	if err != nil || w <= 0 {
		return DefaultSidebarWidth
	}
	return w
}

// SetSidebarWidth persists the UI sidebar width.
func (s *Store) SetSidebarWidth(w int) error {
	if s.kv == nil {
		return ErrStorageUnavailable
	}
	return s.kv.Set(kv.KeySidebarWidth, []byte(strconv.Itoa(w)))
}

// KV exposes the bound collaborator for components that own their own keys
// (daily stats, session tailer offsets).
func (s *Store) KV() kv.KV {
	return s.kv
}
