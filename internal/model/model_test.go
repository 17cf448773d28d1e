package model

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizePath(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/home/dev/app/", "/home/dev/app"},
		{"  /home/dev/app  ", "/home/dev/app"},
		{"/home/dev//app/./sub/..", "/home/dev/app"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := NormalizePath(tc.in); got != tc.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalPathFoldsCase(t *testing.T) {
	if CanonicalPath("/home/dev/App") != CanonicalPath("/home/dev/app/") {
		t.Error("case and trailing-slash variants must share a canonical path")
	}
}

func TestProjectIDForPathStable(t *testing.T) {
	a := ProjectIDForPath("/home/dev/App")
	b := ProjectIDForPath("/home/dev/app/")
	if a != b {
		t.Errorf("ids differ for equivalent paths: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "proj-") || len(a) != len("proj-")+16 {
		t.Errorf("id shape = %q", a)
	}
	if a == ProjectIDForPath("/home/dev/other") {
		t.Error("distinct paths share an id")
	}
}

func TestTruncateRunes(t *testing.T) {
	short := "keep me"
	if got := Truncate(short); got != short {
		t.Errorf("Truncate(short) = %q", got)
	}

	long := strings.Repeat("é", TruncatedTextLimit+25)
	got := Truncate(long)
	if n := len([]rune(got)); n != TruncatedTextLimit {
		t.Errorf("truncated length = %d runes, want %d", n, TruncatedTextLimit)
	}
	if !strings.HasPrefix(long, got) {
		t.Error("truncation did not preserve the prefix")
	}
}

func TestSourceSessionIDFallsBackToLegacyKey(t *testing.T) {
	var s Session
	if got := s.SourceSessionID(); got != "" {
		t.Errorf("empty session id = %q", got)
	}

	s.SetMetadata(MetaCursorComposerID, "composer-7")
	if got := s.SourceSessionID(); got != "composer-7" {
		t.Errorf("legacy fallback = %q", got)
	}

	s.SetMetadata(MetaSourceSessionID, "hash/abc")
	if got := s.SourceSessionID(); got != "hash/abc" {
		t.Errorf("modern key = %q, want it to win over legacy", got)
	}
}

func TestSessionDuration(t *testing.T) {
	start := time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)
	s := Session{StartTime: start, LastActivity: start.Add(90 * time.Minute)}
	if got := s.Duration(); got != 90*time.Minute {
		t.Errorf("Duration = %v, want 90m", got)
	}

	s.LastActivity = start.Add(-time.Minute)
	if got := s.Duration(); got != 0 {
		t.Errorf("Duration with clock skew = %v, want 0", got)
	}
}
