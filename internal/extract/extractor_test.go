package extract

import (
	"testing"
	"time"

	"github.com/anthropic/worklog/internal/model"
)

func prompts(texts ...string) []*model.Prompt {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	out := make([]*model.Prompt, 0, len(texts))
	for i, txt := range texts {
		out = append(out, &model.Prompt{
			ID:        "p" + string(rune('0'+i)),
			Text:      txt,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	return out
}

func TestEntitiesClassification(t *testing.T) {
	got := Entities(prompts(
		"fix AuthForm.tsx and update auth/token.ts",
		"the Sidebar component needs the useAuth hook",
		"call fetchData() after class UserService loads",
		"the Manager class wraps it",
	))

	byKey := make(map[string]Entity)
	for _, e := range got {
		byKey[e.Type+":"+e.Name] = e
	}

	for _, want := range []string{
		"file:AuthForm.tsx", "file:auth/token.ts",
		"component:Sidebar", "function:useAuth", "function:fetchData",
		"class:UserService", "class:Manager",
	} {
		if _, ok := byKey[want]; !ok {
			t.Errorf("missing entity %s in %v", want, got)
		}
	}
}

func TestEntitiesStoplistAndMentions(t *testing.T) {
	got := Entities(prompts(
		"The component is broken in AuthForm.tsx",
		"AuthForm.tsx still fails after the change",
	))

	if len(got) == 0 || got[0].Name != "AuthForm.tsx" || got[0].Mentions != 2 {
		t.Fatalf("entities = %+v, want AuthForm.tsx with 2 mentions first", got)
	}
	for _, e := range got {
		if e.Type == "component" && e.Name == "The" {
			t.Error("stoplisted word recognized as a component")
		}
	}
	if !got[0].LastMentioned.After(got[0].FirstMentioned) {
		t.Errorf("mention span = [%v, %v], want widened", got[0].FirstMentioned, got[0].LastMentioned)
	}
}

func TestTechStackTableOrder(t *testing.T) {
	got := TechStack(prompts(
		"add a docker container for the worker",
		"migrate the postgres database",
		"refactor Sidebar.tsx",
	))

	want := []string{"TypeScript", "PostgreSQL", "Docker"}
	if len(got) != len(want) {
		t.Fatalf("TechStack = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TechStack[%d] = %q, want %q (table order)", i, got[i], want[i])
		}
	}
}

func TestDecisions(t *testing.T) {
	got := Decisions(prompts(
		"I'll use Redis for caching the session lookups",
		"going with PostgreSQL for the main database",
		"going with PostgreSQL for the main database",
		"switching to tailwind for styling",
	))

	if len(got) != 3 {
		t.Fatalf("decisions = %+v, want 3 after dedup", got)
	}
	if got[0].Description != "Redis for caching the session lookups" {
		t.Errorf("Description = %q", got[0].Description)
	}
	if got[0].Importance != "medium" {
		t.Errorf("caching importance = %q, want medium", got[0].Importance)
	}
	if got[1].Importance != "high" {
		t.Errorf("database importance = %q, want high", got[1].Importance)
	}
	if got[2].Importance != "low" {
		t.Errorf("styling importance = %q, want low", got[2].Importance)
	}
}

func TestTopicsRanking(t *testing.T) {
	got := Topics(prompts(
		"api api api",
		"testing the api",
		"debugging now",
		"database migration",
		"caching",
		"routing",
	))

	if len(got) != 5 {
		t.Fatalf("topics = %v, want capped at 5", got)
	}
	if got[0] != "api" {
		t.Errorf("topics[0] = %q, want the most counted", got[0])
	}
	want := []string{"api", "caching", "database", "debugging", "migration"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topics[%d] = %q, want %q (ties break alphabetically)", i, got[i], want[i])
		}
	}
}

func TestTopicsOfTextTableOrder(t *testing.T) {
	got := TopicsOfText("styling and testing forms")
	want := []string{"testing", "styling", "form"}
	if len(got) != len(want) {
		t.Fatalf("TopicsOfText = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopicsOfText[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
