package summary

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ParseQuality grades how the model output was recovered.
type ParseQuality string

const (
	ParsedOk       ParseQuality = "ok"       // strict JSON
	ParsedRepaired ParseQuality = "repaired" // JSON after trailing-comma repair
	ParsedDegraded ParseQuality = "degraded" // recovered from plain text
	ParsedEmpty    ParseQuality = "empty"    // nothing usable
)

// Accomplishment is one summarized piece of completed work.
type Accomplishment struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Project  string `json:"project,omitempty"`
}

// UnmarshalJSON accepts both the object shape and a bare string, which
// models frequently emit for plain accomplishment lists.
func (a *Accomplishment) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Accomplishment{Text: s, Category: "other"}
		return nil
	}
	type plain Accomplishment
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Accomplishment(p)
	return nil
}

// BusinessOutcome ties a piece of work to the project it moved forward.
// Entries without a project are dropped during normalization.
type BusinessOutcome struct {
	Description string `json:"description"`
	Project     string `json:"project"`
	Category    string `json:"category"`
}

// PromptQuality is the period's prompt-quality breakdown.
type PromptQuality struct {
	AverageScore float64 `json:"averageScore"`
	Excellent    int     `json:"excellent"`
	Good         int     `json:"good"`
	Fair         int     `json:"fair"`
	Poor         int     `json:"poor"`
}

// UnmarshalJSON coerces non-object spellings (a bare rating string) to
// the zero breakdown instead of failing the whole parse.
func (q *PromptQuality) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		*q = PromptQuality{}
		return nil
	}
	type plain PromptQuality
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*q = PromptQuality(p)
	return nil
}

// ProjectShare attributes a fraction of the period to a project.
type ProjectShare struct {
	Name  string  `json:"name"`
	Share float64 `json:"share"`
}

// Content is the model-produced summary body. Daily summaries fill only
// the first three fields; weekly and monthly add the period sections.
type Content struct {
	Accomplishments []Accomplishment `json:"accomplishments"`
	SuggestedFocus  []string         `json:"suggestedFocus"`
	Insights        []string         `json:"insights,omitempty"`

	ExecutiveSummary     []string           `json:"executiveSummary,omitempty"`
	ActivityDistribution map[string]float64 `json:"activityDistribution,omitempty"`
	PromptQuality        *PromptQuality     `json:"promptQuality,omitempty"`
	ProjectBreakdown     []ProjectShare     `json:"projectBreakdown,omitempty"`
	BusinessOutcomes     []BusinessOutcome  `json:"businessOutcomes,omitempty"`
}

// stringList decodes either a JSON array of strings or a single string.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*l = stringList{s}
		return nil
	}
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*l = stringList(items)
	return nil
}

// rawContent tolerates the snake_case field spellings some models emit
// and the executive summary arriving as a single string. The shallow
// fields shadow the embedded ones of the same name.
type rawContent struct {
	Content
	ExecutiveCamel      stringList        `json:"executiveSummary"`
	SuggestedFocusSnake []string          `json:"suggested_focus"`
	ExecutiveSnake      stringList        `json:"executive_summary"`
	OutcomesSnake       []BusinessOutcome `json:"business_outcomes"`
}

// validCategories is the closed accomplishment/outcome category set.
var validCategories = map[string]bool{
	"feature": true, "bugfix": true, "refactor": true, "docs": true,
	"test": true, "research": true, "other": true,
}

// categoryAliases folds common model spellings onto the enum.
var categoryAliases = map[string]string{
	"features": "feature", "feat": "feature", "enhancement": "feature",
	"bug": "bugfix", "bug fix": "bugfix", "bug-fix": "bugfix", "fix": "bugfix",
	"refactoring": "refactor", "cleanup": "refactor",
	"testing": "test", "tests": "test",
	"documentation": "docs", "doc": "docs",
	"investigation": "research", "spike": "research", "exploration": "research",
	"infra": "other", "infrastructure": "other", "devops": "other", "ci": "other",
	"chore": "other", "misc": "other",
}

// normalizeCategory maps any category spelling onto the closed enum,
// defaulting to "other". Idempotent on valid values.
func normalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	if validCategories[c] {
		return c
	}
	if alias, ok := categoryAliases[c]; ok {
		return alias
	}
	return "other"
}

// trailingCommaRe matches a comma directly before a closing bracket.
var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// parseContent recovers structured content from raw model output via a
// repair ladder: strict JSON, then trailing-comma repair, then plain-text
// section scanning. The returned quality says which rung succeeded.
func parseContent(raw string) (*Content, ParseQuality) {
	block := extractJSONBlock(raw)
	if block != "" {
		if c := tryDecode(block); c != nil {
			return c, ParsedOk
		}
		repaired := trailingCommaRe.ReplaceAllString(block, "$1")
		if repaired != block {
			if c := tryDecode(repaired); c != nil {
				return c, ParsedRepaired
			}
		}
	}

	if c := parsePlainText(raw); c != nil {
		return c, ParsedDegraded
	}
	return nil, ParsedEmpty
}

// tryDecode decodes and accepts content only when it carries at least
// one accomplishment or suggested focus item.
func tryDecode(block string) *Content {
	var rc rawContent
	if err := json.Unmarshal([]byte(block), &rc); err != nil {
		return nil
	}
	c := rc.Content
	if len(c.SuggestedFocus) == 0 {
		c.SuggestedFocus = rc.SuggestedFocusSnake
	}
	c.ExecutiveSummary = rc.ExecutiveCamel
	if len(c.ExecutiveSummary) == 0 {
		c.ExecutiveSummary = rc.ExecutiveSnake
	}
	if len(c.BusinessOutcomes) == 0 {
		c.BusinessOutcomes = rc.OutcomesSnake
	}
	if len(c.Accomplishments) == 0 && len(c.SuggestedFocus) == 0 {
		return nil
	}
	for i := range c.Accomplishments {
		c.Accomplishments[i].Category = normalizeCategory(c.Accomplishments[i].Category)
	}
	c.BusinessOutcomes = normalizeOutcomes(c.BusinessOutcomes)
	return &c
}

// normalizeOutcomes keeps only outcomes tied to a project and folds
// their categories onto the enum.
func normalizeOutcomes(in []BusinessOutcome) []BusinessOutcome {
	var out []BusinessOutcome
	for _, o := range in {
		if strings.TrimSpace(o.Project) == "" {
			continue
		}
		o.Category = normalizeCategory(o.Category)
		out = append(out, o)
	}
	return out
}

// extractJSONBlock returns the first balanced {...} in the text, skipping
// any prose or code fences the model wrapped around it.
func extractJSONBlock(text string) string {
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

// Plain-text section cues, matched case-insensitively against header lines.
var (
	accomplishmentCues = []string{"accomplish", "achieved", "completed"}
	focusCues          = []string{"suggest", "next", "focus"}
	insightCues        = []string{"insight", "observation"}
)

// minBulletLen discards bullets too short to be meaningful items.
const minBulletLen = 10

// parsePlainText scans non-JSON output for recognizable sections and
// bullets. Returns nil unless at least one accomplishment or focus item
// was found.
func parsePlainText(text string) *Content {
	c := &Content{}
	section := ""

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		bullet, isBullet := bulletText(line)
		if !isBullet {
			if matched := sectionOf(strings.ToLower(line)); matched != "" {
				section = matched
			}
			continue
		}
		if len(bullet) < minBulletLen {
			continue
		}

		switch section {
		case "accomplishments":
			c.Accomplishments = append(c.Accomplishments, Accomplishment{Text: bullet, Category: "other"})
		case "focus":
			c.SuggestedFocus = append(c.SuggestedFocus, bullet)
		case "insights":
			c.Insights = append(c.Insights, bullet)
		}
	}

	if len(c.Accomplishments) == 0 && len(c.SuggestedFocus) == 0 {
		return nil
	}
	return c
}

// numberedBulletRe matches list markers like "1." or "12)".
var numberedBulletRe = regexp.MustCompile(`^\d+[.)]\s+`)

// bulletText strips a list marker ("-", "*", "•", "1.", "1)") from the
// line, reporting whether one was present.
func bulletText(line string) (string, bool) {
	if m := numberedBulletRe.FindString(line); m != "" {
		return strings.TrimSpace(line[len(m):]), true
	}
	stripped := strings.TrimSpace(strings.TrimLeft(line, "-*• \t"))
	return stripped, stripped != line
}

func sectionOf(lower string) string {
	for _, cue := range accomplishmentCues {
		if strings.Contains(lower, cue) {
			return "accomplishments"
		}
	}
	for _, cue := range focusCues {
		if strings.Contains(lower, cue) {
			return "focus"
		}
	}
	for _, cue := range insightCues {
		if strings.Contains(lower, cue) {
			return "insights"
		}
	}
	return ""
}
