package daemon

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/config"
	"github.com/anthropic/worklog/internal/kv"
	"github.com/anthropic/worklog/internal/llm"
	"github.com/anthropic/worklog/internal/session"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.DBPath = filepath.Join(dir, "worklog.db")
	cfg.SocketPath = filepath.Join(dir, "worklog.sock")
	return cfg
}

// stubLM is a canned llm.Capability.
type stubLM struct {
	text string
}

func (s *stubLM) GenerateCompletion(ctx context.Context, req llm.Request) (*llm.Result, error) {
	return &llm.Result{Text: s.text, Provider: "stub"}, nil
}

func (s *stubLM) GenerateCompletionForFeature(ctx context.Context, feature string, req llm.Request) (*llm.Result, error) {
	return s.GenerateCompletion(ctx, req)
}

func (s *stubLM) ActiveProviderInfo() *llm.ProviderInfo {
	return &llm.ProviderInfo{Type: "stub", Model: "stub-1"}
}

func (s *stubLM) IsInitialized() bool { return true }

func (s *stubLM) Initialize(ctx context.Context) error { return nil }

func TestBuildServicesRecordsScoresFromPromptEvents(t *testing.T) {
	cfg := testConfig(t)
	svc := BuildServices(cfg, nil)
	defer svc.DB.Close()

	if _, err := svc.Manager.SyncFromSource(session.SyncInput{
		SourceID:        "claude_code",
		ProjectPath:     "/home/dev/app",
		SourceSessionID: "hash/abc",
	}); err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}
	if _, err := svc.Manager.AddPrompt("tighten the retry backoff in the uploader", 8, nil, time.Now()); err != nil {
		t.Fatalf("AddPrompt: %v", err)
	}

	raw, ok, err := svc.DB.Get(kv.KeyHistoricalScores)
	if err != nil || !ok {
		t.Fatalf("score history blob after scored prompt: ok=%v err=%v", ok, err)
	}
	var scores map[string]struct {
		Total float64 `json:"total"`
		Count int     `json:"count"`
	}
	if err := json.Unmarshal(raw, &scores); err != nil {
		t.Fatalf("decode score history: %v", err)
	}
	day := time.Now().Format("2006-01-02")
	if b := scores[day]; b.Count != 1 || b.Total != 8 {
		t.Errorf("today bucket = %+v, want one score of 8", scores[day])
	}
}

func TestBuildServicesWiresProgressAnalyzer(t *testing.T) {
	cfg := testConfig(t)
	lm := &stubLM{text: `{"progress": 55, "reasoning": "halfway", "sessionTitle": "Uploader retries"}`}
	svc := BuildServices(cfg, lm)
	defer svc.DB.Close()

	sess, err := svc.Manager.SyncFromSource(session.SyncInput{
		SourceID:        "claude_code",
		ProjectPath:     "/home/dev/app",
		SourceSessionID: "hash/abc",
	})
	if err != nil {
		t.Fatalf("SyncFromSource: %v", err)
	}

	// The second prompt crosses the minimum and the subscriber drives a
	// model-backed analysis end to end.
	for i := 0; i < cfg.MinPromptsForProgressAnalysis; i++ {
		if id := svc.Manager.OnPromptDetected(session.PromptInput{
			Text:            "keep reworking the uploader retry path",
			SourceID:        "claude_code",
			SourceSessionID: "hash/abc",
			Timestamp:       time.Now(),
		}); id == "" {
			t.Fatal("prompt dropped")
		}
	}

	svc.Store.RLockGraph()
	progress, name := sess.GoalProgress, sess.CustomName
	svc.Store.RUnlockGraph()
	if progress != 55 {
		t.Errorf("GoalProgress = %d, want 55 from the model judgement", progress)
	}
	if name != "Uploader retries" {
		t.Errorf("CustomName = %q, want model title applied", name)
	}
}
