package session

import (
	"github.com/anthropic/worklog/internal/events"
	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/project"
)

// SyncInput is the normalized activity notification delivered by external
// source adapters.
type SyncInput struct {
	SourceID        string
	ProjectPath     string
	ProjectName     string
	SourceSessionID string
}

// sourcePlatforms maps adapter source ids to platforms. Unknown sources
// land on vscode.
var sourcePlatforms = map[string]model.Platform{
	"cursor":         model.PlatformCursor,
	"windsurf":       model.PlatformCursor,
	"claude_code":    model.PlatformClaudeCode,
	"vscode":         model.PlatformVSCode,
	"github_copilot": model.PlatformVSCode,
	"cody":           model.PlatformVSCode,
}

// PlatformForSource resolves an adapter source id to a platform.
func PlatformForSource(sourceID string) model.Platform {
	if p, ok := sourcePlatforms[sourceID]; ok {
		return p
	}
	return model.PlatformVSCode
}

// SyncFromSource correlates external source activity to a session.
//
// When the source supplies a session id, the lookup is cross-project: a
// session created under a different project previously must be reused,
// never duplicated. Otherwise the project is found or created by path and
// a session is resolved for it.
func (m *Manager) SyncFromSource(in SyncInput) (*model.Session, error) {
	m.begin()
	defer m.end()
	return m.syncFromSource(in)
}

// syncFromSource is SyncFromSource under an already-held write lock.
func (m *Manager) syncFromSource(in SyncInput) (*model.Session, error) {
	now := m.Now()

	if in.SourceSessionID != "" {
		if s, proj := m.store.FindSessionBySourceID(in.SourceSessionID); s != nil {
			s.LastActivity = now
			proj.LastActivity = now
			m.store.Persist()
			return s, nil
		}
	}

	proj := m.getOrCreateProject(in.ProjectPath, in.ProjectName)
	platform := PlatformForSource(in.SourceID)

	s, err := m.getOrCreateSession(proj.ID, platform, in.SourceSessionID)
	if err != nil {
		return nil, err
	}

	m.store.SetActive(proj.ID, s.ID)
	s.SetMetadata(model.MetaSourceID, in.SourceID)
	if in.SourceSessionID != "" {
		s.SetMetadata(model.MetaSourceSessionID, in.SourceSessionID)
	}

	m.queue(events.Event{Kind: events.SessionActivity, SessionID: s.ID, ProjectID: proj.ID})
	m.store.Persist()
	return s, nil
}

// getOrCreateProject finds the project by normalized path or creates it.
func (m *Manager) getOrCreateProject(path, name string) *model.Project {
	if path == "" {
		return m.getOrCreateDefaultProject()
	}
	path = model.NormalizePath(path)

	if p := m.store.FindProjectByPath(path); p != nil {
		return p
	}

	if name == "" {
		name = project.DisplayName(path, "")
	}
	p := &model.Project{
		ID:           model.ProjectIDForPath(path),
		Name:         name,
		Path:         path,
		LastActivity: m.Now(),
	}
	m.store.PutProject(p)
	m.queue(events.Event{Kind: events.ProjectCreated, ProjectID: p.ID, Data: p.Name})
	m.store.Persist()
	return p
}

// getOrCreateDefaultProject returns the synthetic project used when no
// workspace is detectable.
func (m *Manager) getOrCreateDefaultProject() *model.Project {
	if p := m.store.FindProjectByPath(model.DefaultProjectPath); p != nil {
		return p
	}
	p := &model.Project{
		ID:           model.ProjectIDForPath(model.DefaultProjectPath),
		Name:         "Default Project",
		Path:         model.DefaultProjectPath,
		LastActivity: m.Now(),
	}
	m.store.PutProject(p)
	m.queue(events.Event{Kind: events.ProjectCreated, ProjectID: p.ID, Data: p.Name})
	m.store.Persist()
	return p
}
