// Package model defines the persistent entity graph for tracked work:
// projects, sessions, prompts, and responses, plus the snapshot envelope
// used by the durable key-value store. All other packages operate on these
// types through the entity store's accessors.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
	"time"
)

// Platform identifies the editor or CLI a session originated from.
type Platform string

const (
	PlatformCursor     Platform = "cursor"
	PlatformClaudeCode Platform = "claude_code"
	PlatformVSCode     Platform = "vscode"
)

// Metadata keys stored on sessions.
const (
	// MetaSourceSessionID is the identifier supplied by the originating
	// editor/CLI, used to correlate externally-grouped chats with sessions.
	MetaSourceSessionID = "sourceSessionId"

	// MetaSourceID records which adapter produced the session.
	MetaSourceID = "sourceId"

	// MetaCursorComposerID is the legacy key older snapshots used before
	// sourceSessionId became source-agnostic.
	MetaCursorComposerID = "cursorComposerId"
)

// DefaultProjectPath is the reserved path for the synthetic project used
// when no workspace is detectable.
const DefaultProjectPath = "__default__"

// TruncatedTextLimit caps the stored short form of a prompt.
const TruncatedTextLimit = 200

// Project is the stable unit of user work. The normalized path is the
// logical primary key; ID is a stable hash of it.
type Project struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Path          string     `json:"path"`
	Sessions      []*Session `json:"sessions"`
	IsExpanded    bool       `json:"isExpanded"`
	TotalSessions int        `json:"totalSessions"`
	TotalPrompts  int        `json:"totalPrompts"`
	LastActivity  time.Time  `json:"lastActivityTime"`
}

// Session is a contiguous stretch of AI-assisted work within one project
// and one platform.
type Session struct {
	ID                string            `json:"id"`
	ProjectID         string            `json:"projectId"`
	Platform          Platform          `json:"platform"`
	StartTime         time.Time         `json:"startTime"`
	LastActivity      time.Time         `json:"lastActivityTime"`
	IsActive          bool              `json:"isActive"`
	HasUnreadActivity bool              `json:"hasUnreadActivity"`
	Prompts           []*Prompt         `json:"prompts"`
	Responses         []*Response       `json:"responses"`
	PromptCount       int               `json:"promptCount"`
	AverageScore      *float64          `json:"averageScore,omitempty"`
	Goal              string            `json:"goal,omitempty"`
	GoalSetAt         *time.Time        `json:"goalSetAt,omitempty"`
	GoalCompletedAt   *time.Time        `json:"goalCompletedAt,omitempty"`
	GoalProgress      int               `json:"goalProgress,omitempty"`
	CustomName        string            `json:"customName,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// SourceSessionID returns the correlation id stored on the session,
// falling back to the legacy cursor composer key.
func (s *Session) SourceSessionID() string {
	if s.Metadata == nil {
		return ""
	}
	if v := s.Metadata[MetaSourceSessionID]; v != "" {
		return v
	}
	return s.Metadata[MetaCursorComposerID]
}

// SetMetadata stores a metadata key, allocating the map on first use.
func (s *Session) SetMetadata(key, value string) {
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
}

// Duration returns the session's elapsed time between start and last activity.
func (s *Session) Duration() time.Duration {
	if s.LastActivity.Before(s.StartTime) {
		return 0
	}
	return s.LastActivity.Sub(s.StartTime)
}

// ScoreBreakdown holds the weighted per-dimension components of a prompt score.
type ScoreBreakdown struct {
	Specificity   float64 `json:"specificity"`
	Context       float64 `json:"context"`
	Intent        float64 `json:"intent"`
	Actionability float64 `json:"actionability"`
	Constraints   float64 `json:"constraints"`
}

// Prompt is one user message captured from a source.
type Prompt struct {
	ID            string          `json:"id"`
	SessionID     string          `json:"sessionId"`
	Text          string          `json:"text"`
	TruncatedText string          `json:"truncatedText"`
	Timestamp     time.Time       `json:"timestamp"`
	Score         float64         `json:"score"`
	Breakdown     *ScoreBreakdown `json:"breakdown,omitempty"`
	EnhancedText  string          `json:"enhancedText,omitempty"`
	EnhancedScore *float64        `json:"enhancedScore,omitempty"`
}

// Outcome classifies how a captured response ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeBlocked Outcome = "blocked"
	OutcomeError   Outcome = "error"
)

// ToolCall is a single tool invocation captured from an assistant response.
type ToolCall struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments,omitempty"`
}

// Response is one assistant reply correlated to a prompt.
type Response struct {
	ID            string     `json:"id"`
	PromptID      string     `json:"promptId,omitempty"`
	Timestamp     time.Time  `json:"timestamp"`
	Source        string     `json:"source"`
	Text          string     `json:"text"`
	Outcome       Outcome    `json:"outcome,omitempty"`
	Success       bool       `json:"success"`
	Reason        string     `json:"reason,omitempty"`
	FilesModified []string   `json:"filesModified,omitempty"`
	ToolCalls     []ToolCall `json:"toolCalls,omitempty"`
	ToolResults   []string   `json:"toolResults,omitempty"`
}

// Interaction pairs a prompt with the response that answered it, if any.
type Interaction struct {
	Prompt   *Prompt
	Response *Response
}

// NormalizePath cleans a workspace path for storage and display.
func NormalizePath(path string) string {
	cleaned := filepath.Clean(strings.TrimSpace(path))
	return strings.TrimSuffix(cleaned, string(filepath.Separator))
}

// CanonicalPath returns the case-insensitive comparison form of a path.
// Two projects may never share a canonical path.
func CanonicalPath(path string) string {
	return strings.ToLower(NormalizePath(path))
}

// ProjectIDForPath derives the stable opaque project id from a workspace
// path. The same path always yields the same id across runs and processes.
func ProjectIDForPath(path string) string {
	sum := sha256.Sum256([]byte(CanonicalPath(path)))
	return "proj-" + hex.EncodeToString(sum[:])[:16]
}

// Truncate returns text capped at TruncatedTextLimit characters.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= TruncatedTextLimit {
		return text
	}
	return string(runes[:TruncatedTextLimit])
}
