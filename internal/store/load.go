package store

import (
	"log"
	"sort"

	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/model"
)

// Load reads the persisted snapshot into memory. A corrupt snapshot falls
// back to empty state with a warning. Legacy snapshots containing several
// projects for the same normalized path are merged and re-persisted.
func (s *Store) Load() error {
	if s.kv == nil {
		return ErrStorageUnavailable
	}

	data, ok, err := s.kv.Get(kv.KeySessionState)
	if err != nil {
		return err
	}
	if !ok {
		return nil // first run, nothing persisted yet
	}

	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		log.Printf("store: corrupt snapshot, starting empty: %v", err)
		return nil
	}

	merged, didMerge := mergeDuplicateProjects(snap.Projects)

	s.LockGraph()
	defer s.UnlockGraph()
	s.mu.Lock()
	s.projects = make(map[string]*model.Project, len(merged))
	for _, p := range merged {
		recountProject(p)
		s.projects[p.ID] = p
	}
	s.activeSessionID = snap.ActiveSessionID
	s.activeProjectID = snap.ActiveProjectID
	if snap.Config.MaxInactivityMinutes > 0 {
		// Older snapshots predate the analysis cadence fields; keep the
		// configured values rather than adopting zeros.
		if snap.Config.MinPromptsForProgressAnalysis <= 0 {
			snap.Config.MinPromptsForProgressAnalysis = s.cfg.MinPromptsForProgressAnalysis
		}
		if snap.Config.ProgressAnalysisInterval <= 0 {
			snap.Config.ProgressAnalysisInterval = s.cfg.ProgressAnalysisInterval
		}
		if snap.Config.ProgressAnalysisDebounceMs <= 0 {
			snap.Config.ProgressAnalysisDebounceMs = s.cfg.ProgressAnalysisDebounceMs
		}
		s.cfg = snap.Config
	}
	// Active pointers may reference entities pruned from a legacy snapshot.
	if s.activeSessionID != "" {
		if sess, _ := s.getSessionLocked(s.activeSessionID); sess == nil {
			s.activeSessionID = ""
		}
	}
	if s.activeProjectID != "" && s.projects[s.activeProjectID] == nil {
		s.activeProjectID = ""
	}
	s.mu.Unlock()

	if didMerge {
		// Re-persist the cleaned snapshot so the merge happens only once.
		s.Persist()
	}
	return nil
}

// mergeDuplicateProjects collapses projects sharing a case-insensitive
// normalized path. Sessions are concatenated, counters recomputed, the
// most recent activity time retained, and the lexicographically smallest
// id kept as canonical.
func mergeDuplicateProjects(projects []*model.Project) ([]*model.Project, bool) {
	byPath := make(map[string][]*model.Project)
	var order []string
	for _, p := range projects {
		canon := model.CanonicalPath(p.Path)
		if _, seen := byPath[canon]; !seen {
			order = append(order, canon)
		}
		byPath[canon] = append(byPath[canon], p)
	}

	didMerge := false
	out := make([]*model.Project, 0, len(order))
	for _, canon := range order {
		group := byPath[canon]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}

		didMerge = true
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })

		canonical := group[0]
		for _, dup := range group[1:] {
			canonical.Sessions = append(canonical.Sessions, dup.Sessions...)
			if dup.LastActivity.After(canonical.LastActivity) {
				canonical.LastActivity = dup.LastActivity
			}
		}
		// Sessions keep their content but now belong to the canonical project.
		for _, sess := range canonical.Sessions {
			sess.ProjectID = canonical.ID
		}
		recountProject(canonical)
		out = append(out, canonical)
	}
	return out, didMerge
}

// recountProject re-establishes the counter invariants:
// totalSessions == |sessions| and totalPrompts == sum of promptCounts.
func recountProject(p *model.Project) {
	p.TotalSessions = len(p.Sessions)
	total := 0
	for _, sess := range p.Sessions {
		sess.PromptCount = len(sess.Prompts)
		total += sess.PromptCount
	}
	p.TotalPrompts = total
}
