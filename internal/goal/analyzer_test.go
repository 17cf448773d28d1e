package goal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/model"
)

// fakeLM is a canned llm.Capability.
type fakeLM struct {
	initialized bool
	text        string
	err         error
	lastFeature string
	lastPrompt  string
}

func (f *fakeLM) GenerateCompletion(ctx context.Context, req llm.Request) (*llm.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Result{Text: f.text, Provider: "fake"}, nil
}

func (f *fakeLM) GenerateCompletionForFeature(ctx context.Context, feature string, req llm.Request) (*llm.Result, error) {
	f.lastFeature = feature
	f.lastPrompt = req.Prompt
	return f.GenerateCompletion(ctx, req)
}

func (f *fakeLM) ActiveProviderInfo() *llm.ProviderInfo {
	return &llm.ProviderInfo{Type: "fake", Model: "fake-1"}
}

func (f *fakeLM) IsInitialized() bool { return f.initialized }

func (f *fakeLM) Initialize(ctx context.Context) error { return nil }

func analyzerSession() *model.Session {
	return &model.Session{
		ID:   "sess-1",
		Goal: "Fix AuthForm",
		Prompts: []*model.Prompt{
			{ID: "p1", TruncatedText: "why does the auth form reject valid tokens"},
			{ID: "p2", TruncatedText: "add a regression test for the token path"},
		},
	}
}

func TestLLMAnalyzerParsesJudgement(t *testing.T) {
	lm := &fakeLM{
		initialized: true,
		text:        `Here you go: {"progress": 60, "reasoning": "test added, bug isolated", "sessionTitle": "Auth token fix"}`,
	}
	a := NewLLMProgressAnalyzer(lm)

	res, err := a.AnalyzeProgress(context.Background(), analyzerSession(), "Fix AuthForm")
	if err != nil {
		t.Fatalf("AnalyzeProgress: %v", err)
	}
	if res.Progress != 60 || res.SessionTitle != "Auth token fix" {
		t.Errorf("result = %+v, want progress 60 with title", res)
	}
	if lm.lastFeature != llm.FeatureScoring {
		t.Errorf("feature = %q, want %q", lm.lastFeature, llm.FeatureScoring)
	}
	if !strings.Contains(lm.lastPrompt, "Fix AuthForm") {
		t.Error("goal missing from the model prompt")
	}
	if !strings.Contains(lm.lastPrompt, "auth form reject") {
		t.Error("recent prompts missing from the model prompt")
	}
}

func TestLLMAnalyzerClampsProgress(t *testing.T) {
	lm := &fakeLM{initialized: true, text: `{"progress": 150, "reasoning": "done"}`}
	a := NewLLMProgressAnalyzer(lm)

	res, err := a.AnalyzeProgress(context.Background(), analyzerSession(), "")
	if err != nil {
		t.Fatalf("AnalyzeProgress: %v", err)
	}
	if res.Progress != 100 {
		t.Errorf("Progress = %d, want clamped to 100", res.Progress)
	}
}

func TestLLMAnalyzerUninitializedIsNoOp(t *testing.T) {
	a := NewLLMProgressAnalyzer(&fakeLM{initialized: false})
	res, err := a.AnalyzeProgress(context.Background(), analyzerSession(), "x")
	if res != nil || err != nil {
		t.Errorf("uninitialized capability = (%+v, %v), want (nil, nil)", res, err)
	}
}

func TestLLMAnalyzerErrors(t *testing.T) {
	cases := []struct {
		name string
		lm   *fakeLM
	}{
		{"model failure", &fakeLM{initialized: true, err: errors.New("HTTP 500")}},
		{"no json", &fakeLM{initialized: true, text: "I cannot judge this session."}},
		{"malformed json", &fakeLM{initialized: true, text: `{"progress": "lots"}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewLLMProgressAnalyzer(tc.lm)
			if _, err := a.AnalyzeProgress(context.Background(), analyzerSession(), "x"); err == nil {
				t.Error("want error so tracking is not advanced")
			}
		})
	}
}
