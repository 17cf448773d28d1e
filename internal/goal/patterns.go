// Package goal infers and tracks session goals: explicit goal edits,
// pattern-based and LM-assisted inference, and debounced goal-progress
// analysis per session.
package goal

import (
	"regexp"
	"sort"
	"strings"

	"github.com/anthropic/worklog/internal/model"
)

// Theme is one inferable goal category with its detection keywords and
// the template used to phrase the suggested goal. Template takes the
// specific target when one is extracted; Generic is used otherwise.
type Theme struct {
	Name     string
	Keywords []string
	Template string // with target, e.g. "Fix %s"
	Generic  string // without target
}

// themeTable is the fixed 12-theme inference table.
var themeTable = []Theme{
	{"Bug Fixing", []string{"fix", "bug", "debug", "error", "issue", "resolve", "broken", "crash"}, "Fix %s", "Fix bugs and issues"},
	{"Feature Implementation", []string{"implement", "add", "create", "build", "feature", "new"}, "Implement %s", "Implement new features"},
	{"Refactoring", []string{"refactor", "clean", "restructure", "simplify", "extract", "reorganize"}, "Refactor %s", "Refactor and clean up code"},
	{"Testing", []string{"test", "coverage", "unit", "integration", "mock", "assert"}, "Test %s", "Improve test coverage"},
	{"Documentation", []string{"document", "docs", "readme", "comment", "explain"}, "Document %s", "Improve documentation"},
	{"Performance", []string{"performance", "optimize", "slow", "fast", "memory", "profil"}, "Optimize %s", "Improve performance"},
	{"UI & Styling", []string{"style", "css", "design", "layout", "responsive", "ui"}, "Style %s", "Improve UI and styling"},
	{"API Integration", []string{"api", "endpoint", "integration", "request", "fetch", "webhook"}, "Integrate %s", "Build API integrations"},
	{"Database", []string{"database", "schema", "migration", "query", "sql", "index"}, "Update %s schema", "Work on database layer"},
	{"Authentication", []string{"auth", "login", "session", "token", "oauth", "permission"}, "Implement %s auth", "Work on authentication"},
	{"Deployment", []string{"deploy", "release", "docker", "pipeline", "ci", "build"}, "Deploy %s", "Set up deployment"},
	{"Configuration", []string{"config", "setup", "environment", "settings", "install"}, "Configure %s", "Set up configuration"},
}

// minConfidence is the default inference acceptance threshold.
const minConfidence = 0.3

// promptsAnalyzed is how many recent prompts feed the inference.
const promptsAnalyzed = 5

// Specific-target extraction patterns, highest priority first.
var targetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthe\s+(\w+)\s+(?:component|function|class|hook)\b`),
	regexp.MustCompile(`(?i)\b(?:implement|create|add)\s+(?:a\s+|the\s+)?([A-Z]\w+)`),
	regexp.MustCompile(`(?i)\b(?:fix|debug)\s+(?:the\s+)?([A-Z]\w+)`),
}

// fileTargetRe pulls a file mention whose base name can serve as target.
var fileTargetRe = regexp.MustCompile(`\b([A-Z]\w+)\.(?:tsx|ts|jsx|js|go|py|rs|java|rb)\b`)

// technicalTermRe collects identifier-like keywords for the inference output.
var technicalTermRe = regexp.MustCompile(`\b(?:use[A-Z]\w+|[A-Z][a-z]+[A-Z]\w*|[\w-]+\.(?:tsx?|jsx?|go|py|rs))\b`)

// Inference is the result of pattern-based goal inference.
type Inference struct {
	SuggestedGoal   string   `json:"suggestedGoal"`
	Confidence      float64  `json:"confidence"`
	DetectedTheme   string   `json:"detectedTheme"`
	Keywords        []string `json:"keywords,omitempty"`
	PromptsAnalyzed int      `json:"promptsAnalyzed"`
}

// InferFromPatterns scores the theme table against the last five prompts
// and phrases a goal for the winning theme. Returns nil when no theme
// reaches the confidence threshold.
func InferFromPatterns(prompts []*model.Prompt) *Inference {
	recent := lastN(prompts, promptsAnalyzed)
	if len(recent) == 0 {
		return nil
	}

	var texts []string
	for _, p := range recent {
		texts = append(texts, strings.ToLower(p.Text))
	}
	joined := strings.Join(texts, "\n")

	scores := make([]int, len(themeTable))
	total := 0
	for i, theme := range themeTable {
		for _, kw := range theme.Keywords {
			n := strings.Count(joined, kw)
			scores[i] += n
			total += n
		}
	}
	if total == 0 {
		return nil
	}

	best := 0
	for i := range scores {
		if scores[i] > scores[best] {
			best = i
		}
	}
	confidence := float64(scores[best]) / float64(total)
	if confidence < minConfidence {
		return nil
	}

	theme := themeTable[best]
	goalText := theme.Generic
	if target := extractTarget(recent); target != "" {
		goalText = strings.Replace(theme.Template, "%s", target, 1)
	}

	return &Inference{
		SuggestedGoal:   goalText,
		Confidence:      confidence,
		DetectedTheme:   theme.Name,
		Keywords:        inferenceKeywords(theme, joined),
		PromptsAnalyzed: len(recent),
	}
}

// extractTarget finds a specific work target in the recent prompts:
// a capitalized file base name first, then the phrase patterns.
func extractTarget(prompts []*model.Prompt) string {
	for _, p := range prompts {
		if m := fileTargetRe.FindStringSubmatch(p.Text); m != nil {
			return m[1]
		}
	}
	for _, re := range targetPatterns {
		for _, p := range prompts {
			if m := re.FindStringSubmatch(p.Text); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// inferenceKeywords unions the theme keywords present in the text with
// technical terms found by the identifier pattern.
func inferenceKeywords(theme Theme, joined string) []string {
	seen := make(map[string]bool)
	var out []string

	for _, kw := range theme.Keywords {
		if strings.Contains(joined, kw) && !seen[kw] {
			seen[kw] = true
			out = append(out, kw)
		}
	}
	terms := technicalTermRe.FindAllString(joined, -1)
	sort.Strings(terms)
	for _, term := range terms {
		if !seen[term] {
			seen[term] = true
			out = append(out, term)
		}
	}
	return out
}

func lastN(prompts []*model.Prompt, n int) []*model.Prompt {
	if len(prompts) <= n {
		return prompts
	}
	return prompts[len(prompts)-n:]
}
