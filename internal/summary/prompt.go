package summary

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/store"
)

// Prompt assembly caps. The model sees a bounded digest, never raw
// session transcripts.
const (
	maxWorkSummaries     = 5
	maxDeveloperRequests = 3
	requestPoolSessions  = 20
	maxDirAreas          = 5
	maxFilesPerArea      = 4
)

// Timeframe selects the summary window and narrative register.
type Timeframe string

const (
	Daily   Timeframe = "daily"
	Weekly  Timeframe = "weekly"
	Monthly Timeframe = "monthly"
)

// window is the half-open [From, To) time range a summary covers.
type window struct {
	From time.Time
	To   time.Time
}

// windowFor computes the window for a timeframe ending at now: the
// current day, the last 7 days, or the calendar month to date.
func windowFor(tf Timeframe, now time.Time) window {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch tf {
	case Weekly:
		return window{From: dayStart.AddDate(0, 0, -6), To: now}
	case Monthly:
		return window{From: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()), To: now}
	default:
		return window{From: dayStart, To: now}
	}
}

func (w window) contains(t time.Time) bool {
	return !t.Before(w.From) && t.Before(w.To)
}

// projectActivity is the per-project digest fed into the prompt.
type projectActivity struct {
	Name     string
	Minutes  int
	Sessions int
	Prompts  int
	Files    []string
}

// activity is everything aggregated from the entity graph for one window.
type activity struct {
	Projects      []projectActivity
	WorkSummaries []string
	Requests      []string
	FilesByArea   map[string][]string
	TotalPrompts  int
	TotalMinutes  int
	TotalSessions int
	ActiveDays    map[string]bool
}

// aggregate walks the store and digests the window's work. Projects come
// back sorted by time spent, most first.
func aggregate(st *store.Store, w window) *activity {
	st.RLockGraph()
	defer st.RUnlockGraph()

	act := &activity{
		FilesByArea: make(map[string][]string),
		ActiveDays:  make(map[string]bool),
	}

	var pool []*model.Session
	fileSeen := make(map[string]bool)

	for _, proj := range st.AllProjects() {
		pa := projectActivity{Name: proj.Name}
		for _, s := range proj.Sessions {
			if !w.contains(s.LastActivity) {
				continue
			}
			pa.Sessions++
			pa.Minutes += int(s.Duration() / time.Minute)
			pool = append(pool, s)

			if name := sessionTitle(s); name != "" && len(act.WorkSummaries) < maxWorkSummaries {
				act.WorkSummaries = append(act.WorkSummaries, name)
			}

			for _, p := range s.Prompts {
				if !w.contains(p.Timestamp) {
					continue
				}
				pa.Prompts++
				act.ActiveDays[p.Timestamp.Format("2006-01-02")] = true
			}
			for _, r := range s.Responses {
				for _, f := range r.FilesModified {
					if fileSeen[f] {
						continue
					}
					fileSeen[f] = true
					pa.Files = append(pa.Files, f)
					area := dirArea(f)
					if len(act.FilesByArea[area]) < maxFilesPerArea {
						act.FilesByArea[area] = append(act.FilesByArea[area], f)
					}
				}
			}
		}
		if pa.Sessions == 0 {
			continue
		}
		act.Projects = append(act.Projects, pa)
		act.TotalSessions += pa.Sessions
		act.TotalPrompts += pa.Prompts
		act.TotalMinutes += pa.Minutes
	}

	sort.SliceStable(act.Projects, func(i, j int) bool {
		if act.Projects[i].Minutes != act.Projects[j].Minutes {
			return act.Projects[i].Minutes > act.Projects[j].Minutes
		}
		return act.Projects[i].Prompts > act.Projects[j].Prompts
	})

	// Representative requests come from the busiest sessions.
	sort.SliceStable(pool, func(i, j int) bool {
		return len(pool[i].Prompts) > len(pool[j].Prompts)
	})
	if len(pool) > requestPoolSessions {
		pool = pool[:requestPoolSessions]
	}
	for _, s := range pool {
		if len(act.Requests) >= maxDeveloperRequests {
			break
		}
		for _, p := range s.Prompts {
			if w.contains(p.Timestamp) && len(p.TruncatedText) > 0 {
				act.Requests = append(act.Requests, p.TruncatedText)
				break
			}
		}
	}
	return act
}

// sessionTitle prefers the custom name, then the goal.
func sessionTitle(s *model.Session) string {
	if s.CustomName != "" {
		return s.CustomName
	}
	return s.Goal
}

// dirArea buckets a file path by its leading directory.
func dirArea(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if i := strings.Index(path, "/"); i > 0 {
		return path[:i]
	}
	return "."
}

// systemPrompt fixes the analyst role and the strict-JSON contract.
const systemPrompt = `You are a concise engineering work analyst. You receive a digest of a developer's AI-assisted coding activity and produce a summary of what was actually accomplished.
Respond with ONLY a JSON object, no prose before or after it.
Be specific about the work described in the digest. Never use filler phrases such as "worked on various tasks", "made good progress", "continued development", or "miscellaneous changes".`

// dailySchema and periodSchema are shown to the model verbatim.
const dailySchema = `{
  "accomplishments": [{"text": "...", "category": "feature|bugfix|refactor|docs|test|research|other", "project": "..."}],
  "suggestedFocus": ["..."],
  "insights": ["..."]
}`

const periodSchema = `{
  "executiveSummary": ["...", "..."],
  "accomplishments": [{"text": "...", "category": "feature|bugfix|refactor|docs|test|research|other", "project": "..."}],
  "suggestedFocus": ["..."],
  "insights": ["..."],
  "activityDistribution": {"coding": 0, "debugging": 0, "testing": 0, "refactoring": 0, "documentation": 0, "configuration": 0, "research": 0, "review": 0, "other": 0},
  "promptQuality": {"averageScore": 0, "excellent": 0, "good": 0, "fair": 0, "poor": 0},
  "businessOutcomes": [{"description": "...", "project": "...", "category": "feature|bugfix|refactor|docs|test|research|other"}],
  "projectBreakdown": [{"name": "...", "share": 0}]
}`

// buildUserPrompt renders the activity digest plus schema guidance.
func buildUserPrompt(tf Timeframe, act *activity, instructions string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Activity digest for a %s summary.\n\n", tf)
	fmt.Fprintf(&b, "Totals: %d prompts across %d sessions in %d projects, ~%d minutes of coding, %d active days.\n\n",
		act.TotalPrompts, act.TotalSessions, len(act.Projects), act.TotalMinutes, len(act.ActiveDays))

	b.WriteString("Projects by time spent:\n")
	for _, p := range act.Projects {
		fmt.Fprintf(&b, "- %s: %d min, %d sessions, %d prompts\n", p.Name, p.Minutes, p.Sessions, p.Prompts)
	}

	if len(act.WorkSummaries) > 0 {
		b.WriteString("\nWork streams:\n")
		for _, w := range act.WorkSummaries {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	if len(act.Requests) > 0 {
		b.WriteString("\nRepresentative developer requests:\n")
		for _, r := range act.Requests {
			fmt.Fprintf(&b, "- %q\n", r)
		}
	}

	if len(act.FilesByArea) > 0 {
		b.WriteString("\nFiles touched by area:\n")
		areas := make([]string, 0, len(act.FilesByArea))
		for area := range act.FilesByArea {
			areas = append(areas, area)
		}
		sort.Strings(areas)
		if len(areas) > maxDirAreas {
			areas = areas[:maxDirAreas]
		}
		for _, area := range areas {
			fmt.Fprintf(&b, "- %s: %s\n", area, strings.Join(act.FilesByArea[area], ", "))
		}
	}

	if instructions != "" {
		fmt.Fprintf(&b, "\nAdditional instructions from the developer: %s\n", instructions)
	}

	schema := dailySchema
	guidance := "Summarize today's work."
	switch tf {
	case Weekly:
		schema = periodSchema
		guidance = "Summarize the week. Weight the executive summary toward the dominant projects."
	case Monthly:
		schema = periodSchema
		guidance = "Summarize the month. Call out sustained themes rather than individual days."
	}
	fmt.Fprintf(&b, "\n%s Respond with ONLY this JSON shape:\n%s\n", guidance, schema)

	return b.String()
}
