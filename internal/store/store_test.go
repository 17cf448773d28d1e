package store

import (
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
)

func snapshotBytes(t *testing.T, snap *model.Snapshot) []byte {
	t.Helper()
	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		t.Fatalf("EncodeSnapshot: %v", err)
	}
	return data
}

func sessionWithPrompts(id, projectID string, n int, last time.Time) *model.Session {
	s := &model.Session{
		ID:           id,
		ProjectID:    projectID,
		Platform:     model.PlatformClaudeCode,
		StartTime:    last.Add(-time.Hour),
		LastActivity: last,
	}
	for i := 0; i < n; i++ {
		s.Prompts = append(s.Prompts, &model.Prompt{
			ID:        id + "-p" + string(rune('a'+i)),
			SessionID: id,
			Text:      "prompt",
			Timestamp: last,
		})
	}
	return s
}

func TestLoadMergesDuplicatePathProjects(t *testing.T) {
	db := kv.NewMemory()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	// Two projects with the same path modulo case and trailing slash,
	// as a legacy snapshot could contain.
	p1 := &model.Project{
		ID: "proj-aaa", Name: "App", Path: "/home/dev/App",
		Sessions:     []*model.Session{sessionWithPrompts("s1", "proj-aaa", 2, base)},
		LastActivity: base,
	}
	p2 := &model.Project{
		ID: "proj-bbb", Name: "app", Path: "/home/dev/app/",
		Sessions:     []*model.Session{sessionWithPrompts("s2", "proj-bbb", 3, base.Add(time.Hour))},
		LastActivity: base.Add(time.Hour),
	}
	data := snapshotBytes(t, &model.Snapshot{Projects: []*model.Project{p1, p2}})
	if err := db.Set(kv.KeySessionState, data); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	s := New(db, model.SnapshotConfig{MaxInactivityMinutes: 120})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	all := s.AllProjects()
	if len(all) != 1 {
		t.Fatalf("projects after load = %d, want 1 merged", len(all))
	}
	merged := all[0]
	if merged.ID != "proj-aaa" {
		t.Errorf("canonical id = %q, want lexicographically smallest %q", merged.ID, "proj-aaa")
	}
	if len(merged.Sessions) != 2 {
		t.Fatalf("sessions after merge = %d, want 2", len(merged.Sessions))
	}
	if merged.TotalSessions != 2 {
		t.Errorf("TotalSessions = %d, want 2", merged.TotalSessions)
	}
	if merged.TotalPrompts != 5 {
		t.Errorf("TotalPrompts = %d, want 5", merged.TotalPrompts)
	}
	if !merged.LastActivity.Equal(base.Add(time.Hour)) {
		t.Errorf("LastActivity = %v, want the newer of the pair", merged.LastActivity)
	}
	for _, sess := range merged.Sessions {
		if sess.ProjectID != merged.ID {
			t.Errorf("session %s ProjectID = %q, want %q", sess.ID, sess.ProjectID, merged.ID)
		}
	}

	// The cleaned snapshot must have been re-persisted.
	raw, ok, err := db.Get(kv.KeySessionState)
	if err != nil || !ok {
		t.Fatalf("re-persisted snapshot missing: ok=%v err=%v", ok, err)
	}
	snap, err := model.DecodeSnapshot(raw)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}
	if len(snap.Projects) != 1 {
		t.Errorf("persisted projects = %d, want 1", len(snap.Projects))
	}
}

func TestLoadPrunesDanglingActivePointers(t *testing.T) {
	db := kv.NewMemory()
	p := &model.Project{ID: "proj-x", Name: "x", Path: "/x"}
	data := snapshotBytes(t, &model.Snapshot{
		Projects:        []*model.Project{p},
		ActiveSessionID: "session-gone",
		ActiveProjectID: "proj-gone",
	})
	if err := db.Set(kv.KeySessionState, data); err != nil {
		t.Fatalf("seed snapshot: %v", err)
	}

	s := New(db, model.SnapshotConfig{})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.ActiveSessionID(); got != "" {
		t.Errorf("ActiveSessionID = %q, want cleared", got)
	}
	if got := s.ActiveProjectID(); got != "" {
		t.Errorf("ActiveProjectID = %q, want cleared", got)
	}
}

func TestLoadCorruptSnapshotStartsEmpty(t *testing.T) {
	db := kv.NewMemory()
	if err := db.Set(kv.KeySessionState, []byte("{not json")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := New(db, model.SnapshotConfig{})
	if err := s.Load(); err != nil {
		t.Fatalf("Load should swallow corruption, got %v", err)
	}
	if n := len(s.AllProjects()); n != 0 {
		t.Errorf("projects = %d, want 0", n)
	}
}

func TestLoadKeepsConfiguredAnalysisCadence(t *testing.T) {
	db := kv.NewMemory()
	// Snapshot from before the cadence fields existed.
	data := snapshotBytes(t, &model.Snapshot{
		Config: model.SnapshotConfig{MaxInactivityMinutes: 45, MinPromptsForSession: 2},
	})
	if err := db.Set(kv.KeySessionState, data); err != nil {
		t.Fatalf("seed: %v", err)
	}

	s := New(db, model.SnapshotConfig{
		MinPromptsForProgressAnalysis: 4,
		ProgressAnalysisInterval:      7,
		ProgressAnalysisDebounceMs:    1000,
	})
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := s.Config()
	if cfg.MaxInactivityMinutes != 45 {
		t.Errorf("MaxInactivityMinutes = %d, want snapshot value 45", cfg.MaxInactivityMinutes)
	}
	if cfg.MinPromptsForProgressAnalysis != 4 {
		t.Errorf("MinPromptsForProgressAnalysis = %d, want configured 4", cfg.MinPromptsForProgressAnalysis)
	}
	if cfg.ProgressAnalysisInterval != 7 {
		t.Errorf("ProgressAnalysisInterval = %d, want configured 7", cfg.ProgressAnalysisInterval)
	}
}

func TestSaveStateWithoutKV(t *testing.T) {
	s := New(nil, model.SnapshotConfig{})
	if err := s.SaveState(); err != ErrStorageUnavailable {
		t.Errorf("SaveState = %v, want ErrStorageUnavailable", err)
	}
	if err := s.Load(); err != ErrStorageUnavailable {
		t.Errorf("Load = %v, want ErrStorageUnavailable", err)
	}
}

func TestFindSessionBySourceIDCrossProject(t *testing.T) {
	s := New(kv.NewMemory(), model.SnapshotConfig{})

	sess := sessionWithPrompts("s1", "proj-a", 1, time.Now())
	sess.SetMetadata(model.MetaSourceSessionID, "hash/abc")
	s.PutProject(&model.Project{ID: "proj-a", Path: "/a", Sessions: []*model.Session{sess}})
	s.PutProject(&model.Project{ID: "proj-b", Path: "/b"})

	found, proj := s.FindSessionBySourceID("hash/abc")
	if found == nil || found.ID != "s1" {
		t.Fatalf("FindSessionBySourceID = %v, want s1", found)
	}
	if proj.ID != "proj-a" {
		t.Errorf("owning project = %q, want proj-a", proj.ID)
	}

	if found, _ := s.FindSessionBySourceID(""); found != nil {
		t.Error("empty source id should never match")
	}
}

func TestFindSessionBySourceIDLegacyComposerKey(t *testing.T) {
	s := New(kv.NewMemory(), model.SnapshotConfig{})

	sess := sessionWithPrompts("s1", "proj-a", 0, time.Now())
	sess.SetMetadata(model.MetaCursorComposerID, "composer-7")
	s.PutProject(&model.Project{ID: "proj-a", Path: "/a", Sessions: []*model.Session{sess}})

	if found, _ := s.FindSessionBySourceID("composer-7"); found == nil {
		t.Error("legacy cursorComposerId should still correlate")
	}
}

func TestSessionsFilter(t *testing.T) {
	s := New(kv.NewMemory(), model.SnapshotConfig{})
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	active := sessionWithPrompts("s-active", "proj-a", 1, base.Add(2*time.Hour))
	active.IsActive = true
	ended := sessionWithPrompts("s-ended", "proj-a", 1, base)
	s.PutProject(&model.Project{ID: "proj-a", Path: "/a", Sessions: []*model.Session{ended, active}})
	s.PutProject(&model.Project{ID: "proj-b", Path: "/b", Sessions: []*model.Session{
		sessionWithPrompts("s-other", "proj-b", 1, base.Add(time.Hour)),
	}})

	all := s.Sessions(SessionFilter{})
	if len(all) != 3 {
		t.Fatalf("unfiltered = %d, want 3", len(all))
	}
	if all[0].ID != "s-active" {
		t.Errorf("first session = %q, want newest activity first", all[0].ID)
	}

	if got := s.Sessions(SessionFilter{ProjectID: "proj-b"}); len(got) != 1 || got[0].ID != "s-other" {
		t.Errorf("project filter returned %v", got)
	}
	if got := s.Sessions(SessionFilter{ActiveOnly: true}); len(got) != 1 || got[0].ID != "s-active" {
		t.Errorf("active filter returned %v", got)
	}
	if got := s.Sessions(SessionFilter{Since: base.Add(30 * time.Minute)}); len(got) != 2 {
		t.Errorf("since filter = %d sessions, want 2", len(got))
	}
}

func TestClearActiveIf(t *testing.T) {
	s := New(kv.NewMemory(), model.SnapshotConfig{})
	s.SetActive("proj-a", "s1")

	s.ClearActiveIf("s2")
	if s.ActiveSessionID() != "s1" {
		t.Error("ClearActiveIf cleared an unrelated session")
	}
	s.ClearActiveIf("s1")
	if s.ActiveSessionID() != "" || s.ActiveProjectID() != "" {
		t.Error("ClearActiveIf left pointers set")
	}
}

func TestSidebarWidthRoundTrip(t *testing.T) {
	s := New(kv.NewMemory(), model.SnapshotConfig{})

	if w := s.SidebarWidth(); w != DefaultSidebarWidth {
		t.Errorf("default width = %d, want %d", w, DefaultSidebarWidth)
	}
	if err := s.SetSidebarWidth(320); err != nil {
		t.Fatalf("SetSidebarWidth: %v", err)
	}
	if w := s.SidebarWidth(); w != 320 {
		t.Errorf("width after set = %d, want 320", w)
	}

	nokv := New(nil, model.SnapshotConfig{})
	if w := nokv.SidebarWidth(); w != DefaultSidebarWidth {
		t.Errorf("width without kv = %d, want default", w)
	}
	if err := nokv.SetSidebarWidth(100); err != ErrStorageUnavailable {
		t.Errorf("SetSidebarWidth without kv = %v, want ErrStorageUnavailable", err)
	}
}
