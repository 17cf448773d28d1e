package goal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/model"
)

// progressSchema is the JSON shape the model is asked to return for a
// progress judgement.
const progressSchema = `{"progress": <0-100>, "reasoning": "<one sentence>", "sessionTitle": "<3-5 word session title>"}`

const progressSystemPrompt = `You judge how far along a developer is on their working goal, based on their recent prompts to a coding assistant.
Respond with ONLY a JSON object in exactly this shape:
` + progressSchema + `
Progress is 0-100. The session title is a short descriptive name for the work, not a sentence.`

// llmProgressAnalyzer judges goal progress through the language model
// capability. It satisfies ProgressAnalyzer.
type llmProgressAnalyzer struct {
	lm llm.Capability
}

// NewLLMProgressAnalyzer returns a ProgressAnalyzer backed by the given
// capability.
func NewLLMProgressAnalyzer(lm llm.Capability) ProgressAnalyzer {
	return &llmProgressAnalyzer{lm: lm}
}

// AnalyzeProgress asks the model for a progress judgement. A capability
// that is absent or not initialized yields (nil, nil) so the caller
// leaves the session untouched; a model or parse failure is an error so
// analysis tracking is not advanced and the next prompt retries.
func (a *llmProgressAnalyzer) AnalyzeProgress(ctx context.Context, sess *model.Session, goal string) (*ProgressResult, error) {
	if a.lm == nil || !a.lm.IsInitialized() {
		return nil, nil
	}

	res, err := a.lm.GenerateCompletionForFeature(ctx, llm.FeatureScoring, llm.Request{
		SystemPrompt: progressSystemPrompt,
		Prompt:       progressUserPrompt(sess, goal),
		Temperature:  0.3,
		MaxTokens:    200,
	})
	if err != nil {
		return nil, fmt.Errorf("progress judgement: %w", err)
	}

	raw := extractJSONObject(res.Text)
	if raw == "" {
		return nil, fmt.Errorf("progress judgement: no JSON in model output")
	}
	var parsed ProgressResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("progress judgement: %w", err)
	}

	if parsed.Progress < 0 {
		parsed.Progress = 0
	}
	if parsed.Progress > 100 {
		parsed.Progress = 100
	}
	return &parsed, nil
}

// progressUserPrompt renders the session's goal and recent prompts for
// the model.
func progressUserPrompt(sess *model.Session, goal string) string {
	var b strings.Builder
	if goal != "" {
		b.WriteString("Goal: ")
		b.WriteString(goal)
		b.WriteString("\n")
	} else {
		b.WriteString("No explicit goal was set; infer the working goal from the prompts.\n")
	}
	b.WriteString("Recent prompts, oldest first:\n")
	for _, p := range lastN(sess.Prompts, promptsAnalyzed) {
		b.WriteString("- ")
		b.WriteString(p.TruncatedText)
		b.WriteString("\n")
	}
	return b.String()
}
