// Package respond analyzes captured assistant responses without language
// model calls: outcome, modified entities, topics, a summary sentence,
// and the heuristic goal-progress increment. Everything here is pure and
// fast; the whole analysis sits well under its 100ms budget.
package respond

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropic/worklog/internal/model"
)

// Output caps.
const (
	maxTopics   = 5
	maxEntities = 20

	// pathSegmentCap shortens very long paths to their tail segments.
	pathSegmentCap = 50
)

// GoalProgress is the heuristic progress delta derived from a response.
type GoalProgress struct {
	Before        int    `json:"before"`
	After         int    `json:"after"`
	JustCompleted string `json:"justCompleted,omitempty"`
}

// Analysis is the result of analyzing one response.
type Analysis struct {
	Summary          string        `json:"summary"`
	Outcome          model.Outcome `json:"outcome"`
	TopicsAddressed  []string      `json:"topicsAddressed,omitempty"`
	EntitiesModified []string      `json:"entitiesModified,omitempty"`
	GoalProgress     *GoalProgress `json:"goalProgress,omitempty"`
}

// responseTopics is the fixed table of 19 dev topics recognized in
// response text.
var responseTopics = []struct {
	Name    string
	Pattern *regexp.Regexp
}{
	{"authentication", regexp.MustCompile(`(?i)\bauth(?:entication|orization)?\b`)},
	{"database", regexp.MustCompile(`(?i)\b(?:database|sql|query|schema|migration)\b`)},
	{"api", regexp.MustCompile(`(?i)\bapi\b|\bendpoint\b|\broute\b`)},
	{"testing", regexp.MustCompile(`(?i)\btests?\b|\btesting\b|\bspec\b`)},
	{"debugging", regexp.MustCompile(`(?i)\bdebug(?:ging)?\b|\bfix(?:ed|ing)?\b|\bbug\b`)},
	{"refactoring", regexp.MustCompile(`(?i)\brefactor(?:ed|ing)?\b|\bcleanup\b`)},
	{"performance", regexp.MustCompile(`(?i)\bperformance\b|\boptimiz(?:e|ed|ation)\b|\bslow\b`)},
	{"styling", regexp.MustCompile(`(?i)\bcss\b|\bstyl(?:e|ing)\b|\blayout\b`)},
	{"state management", regexp.MustCompile(`(?i)\bstate\b|\bstore\b|\breducer\b`)},
	{"error handling", regexp.MustCompile(`(?i)\berror handling\b|\btry/catch\b|\bexception\b`)},
	{"configuration", regexp.MustCompile(`(?i)\bconfig(?:uration)?\b|\bsettings\b|\benv\b`)},
	{"deployment", regexp.MustCompile(`(?i)\bdeploy(?:ment)?\b|\bci/cd\b|\bpipeline\b`)},
	{"documentation", regexp.MustCompile(`(?i)\bdocs?\b|\bdocumentation\b|\breadme\b`)},
	{"validation", regexp.MustCompile(`(?i)\bvalidat(?:e|ion)\b|\bsanitiz(?:e|ation)\b`)},
	{"caching", regexp.MustCompile(`(?i)\bcach(?:e|ing)\b`)},
	{"logging", regexp.MustCompile(`(?i)\blog(?:ging|s)?\b`)},
	{"security", regexp.MustCompile(`(?i)\bsecurity\b|\bvulnerab\w+\b|\bxss\b|\bcsrf\b`)},
	{"routing", regexp.MustCompile(`(?i)\brout(?:er|ing)\b|\bnavigation\b`)},
	{"components", regexp.MustCompile(`(?i)\bcomponents?\b|\bprops\b|\bhooks?\b`)},
}

// toolArgPathKeys are the tool-call argument names that carry file paths.
var toolArgPathKeys = []string{"path", "file", "file_path"}

// filePathRe finds file-looking tokens in tool results and response text.
var filePathRe = regexp.MustCompile(`[\w./\\-]+\.[a-zA-Z]{1,5}\b`)

// quotedFileRe finds backtick-quoted file names in response text.
var quotedFileRe = regexp.MustCompile("`([\\w./\\\\-]+\\.[a-zA-Z]{1,5})`")

// Analyze derives the structured analysis for a captured response. The
// session supplies goal context; it may be nil.
func Analyze(r *model.Response, session *model.Session) Analysis {
	a := Analysis{
		Outcome:          outcomeOf(r),
		TopicsAddressed:  topicsOf(r.Text),
		EntitiesModified: entitiesOf(r),
	}
	a.Summary = summaryOf(r, a)
	if session != nil && session.Goal != "" {
		a.GoalProgress = goalProgressOf(r, session, a.Outcome)
	}
	return a
}

// outcomeOf maps source-specific completion signals onto the outcome enum.
func outcomeOf(r *model.Response) model.Outcome {
	switch r.Source {
	case "cursor":
		if r.Success {
			return model.OutcomeSuccess
		}
		return model.OutcomeError

	case "claude_code", "claude-code":
		switch r.Reason {
		case "completed":
			return model.OutcomeSuccess
		case "error":
			return model.OutcomeError
		case "cancelled":
			return model.OutcomePartial
		}
	}

	// Fall back to the success flag.
	if r.Success {
		return model.OutcomeSuccess
	}
	if strings.Contains(strings.ToLower(r.Reason), "cancel") {
		return model.OutcomePartial
	}
	return model.OutcomeError
}

// topicsOf matches the topic table against response text, max 5.
func topicsOf(text string) []string {
	var out []string
	for _, t := range responseTopics {
		if t.Pattern.MatchString(text) {
			out = append(out, t.Name)
			if len(out) >= maxTopics {
				break
			}
		}
	}
	return out
}

// entitiesOf unions the explicit file list, tool-call path arguments,
// paths in tool results, and files quoted in the text, normalized and
// capped at 20.
func entitiesOf(r *model.Response) []string {
	seen := make(map[string]bool)
	var out []string

	add := func(raw string) {
		if len(out) >= maxEntities {
			return
		}
		normalized := normalizeEntityPath(raw)
		if normalized == "" || seen[normalized] {
			return
		}
		seen[normalized] = true
		out = append(out, normalized)
	}

	for _, f := range r.FilesModified {
		add(f)
	}
	for _, tc := range r.ToolCalls {
		for _, key := range toolArgPathKeys {
			if v := tc.Arguments[key]; v != "" {
				add(v)
			}
		}
	}
	for _, tr := range r.ToolResults {
		for _, m := range filePathRe.FindAllString(tr, -1) {
			add(m)
		}
	}
	for _, m := range quotedFileRe.FindAllStringSubmatch(r.Text, -1) {
		add(m[1])
	}
	return out
}

// normalizeEntityPath strips leading "./", converts backslashes, and caps
// overly long paths to their last two segments.
func normalizeEntityPath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.ReplaceAll(p, `\`, "/")
	p = strings.TrimPrefix(p, "./")
	if p == "" || p == "." {
		return ""
	}
	if len(p) > pathSegmentCap {
		parts := strings.Split(p, "/")
		if len(parts) >= 2 {
			p = parts[len(parts)-2] + "/" + parts[len(parts)-1]
		} else {
			p = parts[len(parts)-1]
		}
	}
	return p
}

// summaryOf selects the first non-trivial line of the response, falling
// back to a derived sentence from entity and tool-call counts.
func summaryOf(r *model.Response, a Analysis) string {
	for _, line := range strings.Split(r.Text, "\n") {
		line = strings.TrimSpace(line)
		if isTrivialLine(line) {
			continue
		}
		return line
	}
	return derivedSummary(r, a)
}

// minSummaryLineLen is the shortest line accepted as a summary sentence.
const minSummaryLineLen = 15

// isTrivialLine rejects headers, code fences, JSON-ish key/value lines,
// and bare paths.
func isTrivialLine(line string) bool {
	if len(line) < minSummaryLineLen {
		return true
	}
	if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "```") {
		return true
	}
	if strings.HasPrefix(line, "{") || strings.HasPrefix(line, "}") || strings.Contains(line, `":`) {
		return true
	}
	if !strings.Contains(line, " ") && strings.Contains(line, "/") {
		return true // bare path
	}
	return false
}

// outcomeVerbs lead the derived summary per outcome.
var outcomeVerbs = map[model.Outcome]string{
	model.OutcomeSuccess: "Completed",
	model.OutcomePartial: "Partially completed",
	model.OutcomeBlocked: "Blocked on",
	model.OutcomeError:   "Error in",
}

func derivedSummary(r *model.Response, a Analysis) string {
	verb := outcomeVerbs[a.Outcome]
	switch {
	case len(a.EntitiesModified) > 0:
		return fmt.Sprintf("%s changes to %d file(s)", verb, len(a.EntitiesModified))
	case len(r.ToolCalls) > 0:
		return fmt.Sprintf("%s work using %d tool call(s)", verb, len(r.ToolCalls))
	default:
		return verb + " assistant response"
	}
}

// Heuristic goal-progress constants: a fixed per-prompt rate capped below
// the analyzer's ceiling, so LM-reported progress can still claim 100.
const (
	progressPerPrompt  = 5
	progressCeiling    = 90
	baseIncrement      = 5
	fileIncrementCap   = 15
	toolIncrementCap   = 10
	perFileIncrement   = 5
	perToolIncrement   = 2
	completedThreshold = 100
)

func goalProgressOf(r *model.Response, s *model.Session, outcome model.Outcome) *GoalProgress {
	before := promptsSinceGoalSet(s) * progressPerPrompt
	if before > progressCeiling {
		before = progressCeiling
	}

	after := before
	if outcome != model.OutcomeError {
		files := len(r.FilesModified) * perFileIncrement
		if files > fileIncrementCap {
			files = fileIncrementCap
		}
		tools := len(r.ToolCalls) * perToolIncrement
		if tools > toolIncrementCap {
			tools = toolIncrementCap
		}
		after += baseIncrement + files + tools
		if after > completedThreshold {
			after = completedThreshold
		}
	}

	gp := &GoalProgress{Before: before, After: after}
	if after > before {
		gp.JustCompleted = fmt.Sprintf("Advanced %q from %d%% to %d%%", s.Goal, before, after)
	}
	return gp
}

// promptsSinceGoalSet counts prompts appended at or after goalSetAt.
func promptsSinceGoalSet(s *model.Session) int {
	if s.GoalSetAt == nil {
		return len(s.Prompts)
	}
	n := 0
	for _, p := range s.Prompts {
		if !p.Timestamp.Before(*s.GoalSetAt) {
			n++
		}
	}
	return n
}
