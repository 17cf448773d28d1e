package extract

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/anthropic/worklog/internal/model"
)

// Budgets for improvement-context assembly. The snippet fetch races a
// hard cap with an empty fallback; the whole build stays under the total.
const (
	totalBudget   = 600 * time.Millisecond
	snippetBudget = 500 * time.Millisecond
)

// Snippet is a weighted code excerpt supplied by the external snippet
// capability.
type Snippet struct {
	FilePath string  `json:"filePath"`
	Content  string  `json:"content"`
	Weight   float64 `json:"weight"`
}

// SnippetProvider is the external snippet-fetch capability.
type SnippetProvider interface {
	FetchSnippets(ctx context.Context, prompt string) ([]Snippet, error)
}

// WeightInputs feed the external weight calculator.
type WeightInputs struct {
	HasGoal       bool
	PromptCount   int
	HasTechStack  bool
	RepeatedTopic bool
}

// Weights are the dynamic section weights for the improvement context.
type Weights struct {
	Goal      float64 `json:"goal"`
	History   float64 `json:"history"`
	Technical float64 `json:"technical"`
}

// WeightCalculator computes section weights from the signal inputs.
type WeightCalculator interface {
	Calculate(in WeightInputs) Weights
}

// GoalBlock carries goal context for the improvement step.
type GoalBlock struct {
	Text              string  `json:"text"`
	EstimatedProgress int     `json:"estimatedProgress"`
	Relevance         float64 `json:"relevance"`
}

// HistoryEntry is one recent prompt with its addressal signal.
type HistoryEntry struct {
	Prompt       string   `json:"prompt"`
	Score        float64  `json:"score"`
	WasAddressed bool     `json:"wasAddressed"`
	Topics       []string `json:"topics,omitempty"`
}

// TechnicalBlock groups the technical signals.
type TechnicalBlock struct {
	TechStack             []string  `json:"techStack,omitempty"`
	CodeSnippets          []Snippet `json:"codeSnippets,omitempty"`
	RecentlyModifiedFiles []string  `json:"recentlyModifiedFiles,omitempty"`
}

// ImprovementContext is the bounded structure handed to the external
// prompt-enhancement step.
type ImprovementContext struct {
	Goal          *GoalBlock     `json:"goal,omitempty"`
	RecentHistory []HistoryEntry `json:"recentHistory,omitempty"`
	Technical     TechnicalBlock `json:"technical"`
	Weights       Weights        `json:"weights"`
}

// Builder assembles improvement contexts from session state plus the
// external snippet and weight capabilities. Either capability may be nil.
type Builder struct {
	Snippets SnippetProvider
	Weigher  WeightCalculator
}

// wasAddressedThreshold marks a historical prompt as addressed when its
// score reached this value.
const wasAddressedThreshold = 5.0

// BuildImprovementContext assembles the context for currentPrompt from
// the session under the total time budget. Internal failures degrade to a
// partial context; this never returns an error.
func (b *Builder) BuildImprovementContext(ctx context.Context, session *model.Session, currentPrompt string) *ImprovementContext {
	ctx, cancel := context.WithTimeout(ctx, totalBudget)
	defer cancel()

	// Snippet fetch runs in parallel with the in-memory reads, racing its
	// own 500ms cap. Timeout or error falls back to no snippets.
	snippetCh := make(chan []Snippet, 1)
	go func() {
		snippetCh <- b.fetchSnippets(ctx, currentPrompt)
	}()

	out := &ImprovementContext{}

	var prompts []*model.Prompt
	if session != nil {
		prompts = session.Prompts
	}

	stack := TechStack(prompts)
	out.Technical.TechStack = stack

	if session != nil && session.Goal != "" {
		out.Goal = &GoalBlock{
			Text:              session.Goal,
			EstimatedProgress: session.GoalProgress,
			Relevance:         goalRelevance(session.Goal, currentPrompt),
		}
	}

	// Last 5 prompts, newest first.
	for i := len(prompts) - 1; i >= 0 && len(out.RecentHistory) < 5; i-- {
		p := prompts[i]
		out.RecentHistory = append(out.RecentHistory, HistoryEntry{
			Prompt:       p.TruncatedText,
			Score:        p.Score,
			WasAddressed: p.Score >= wasAddressedThreshold,
			Topics:       TopicsOfText(p.Text),
		})
	}

	out.Weights = b.weights(WeightInputs{
		HasGoal:       out.Goal != nil,
		PromptCount:   len(prompts),
		HasTechStack:  len(stack) > 0,
		RepeatedTopic: hasRepeatedTopic(prompts),
	})

	select {
	case snippets := <-snippetCh:
		out.Technical.CodeSnippets = snippets
	case <-ctx.Done():
		// Total budget exhausted; ship what we have.
	}

	return out
}

// fetchSnippets invokes the snippet capability under its own budget.
func (b *Builder) fetchSnippets(ctx context.Context, prompt string) []Snippet {
	if b.Snippets == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, snippetBudget)
	defer cancel()

	type result struct {
		snippets []Snippet
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		snippets, err := b.Snippets.FetchSnippets(ctx, prompt)
		ch <- result{snippets, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			log.Printf("extract: snippet fetch failed: %v", r.err)
			return nil
		}
		return r.snippets
	case <-ctx.Done():
		return nil
	}
}

// weights delegates to the external calculator, with an even split when
// none is bound.
func (b *Builder) weights(in WeightInputs) Weights {
	if b.Weigher == nil {
		return Weights{Goal: 1, History: 1, Technical: 1}
	}
	return b.Weigher.Calculate(in)
}

// goalRelevance is the keyword overlap between goal words longer than 3
// characters and the prompt, in [0,1].
func goalRelevance(goal, prompt string) float64 {
	lowerPrompt := strings.ToLower(prompt)
	var total, hits int
	for _, word := range strings.Fields(strings.ToLower(goal)) {
		word = strings.Trim(word, ".,!?;:")
		if len(word) <= 3 {
			continue
		}
		total++
		if strings.Contains(lowerPrompt, word) {
			hits++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// hasRepeatedTopic reports whether any topic occurs at least 3 times in
// the last 10 prompts.
func hasRepeatedTopic(prompts []*model.Prompt) bool {
	start := len(prompts) - 10
	if start < 0 {
		start = 0
	}
	for _, n := range topicCounts(prompts[start:]) {
		if n >= 3 {
			return true
		}
	}
	return false
}
