// Package source tails Claude Code transcript files and feeds the
// prompts and responses they record into the session manager. Transcripts
// are JSONL under ~/.claude/projects/; the format is observed, not
// contractual, so parsing is defensive and unknown lines are skipped.
package source

import (
	"encoding/json"
	"time"

	"github.com/anthropic/worklog/internal/model"
)

// SourceID identifies this adapter in session metadata and sync inputs.
const SourceID = "claude_code"

// EventKind says what a transcript line contained.
type EventKind string

const (
	KindPrompt   EventKind = "prompt"
	KindResponse EventKind = "response"
)

// LineEvent is one parsed transcript line.
type LineEvent struct {
	Kind            EventKind
	SourceSessionID string
	WorkspacePath   string
	Timestamp       time.Time
	Text            string
	ToolCalls       []model.ToolCall
	FilesModified   []string
}

// lineEnvelope is the top-level transcript line shape.
type lineEnvelope struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	CWD       string          `json:"cwd"`
	Timestamp string          `json:"timestamp"`
	IsMeta    bool            `json:"isMeta"`
	Message   json.RawMessage `json:"message"`
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// writeToolNames are the tools whose file_path argument counts as a
// modification.
var writeToolNames = map[string]bool{
	"Write": true, "Edit": true, "MultiEdit": true, "NotebookEdit": true,
}

// ParseLine parses one transcript line. Meta lines, tool results, and
// anything unrecognized return nil with no error; malformed JSON is
// skipped the same way.
func ParseLine(line []byte) *LineEvent {
	line = trimLine(line)
	if len(line) == 0 {
		return nil
	}

	var env lineEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil
	}
	if env.IsMeta || len(env.Message) == 0 {
		return nil
	}

	switch env.Type {
	case "user":
		return parseUserLine(&env)
	case "assistant":
		return parseAssistantLine(&env)
	default:
		return nil
	}
}

func parseUserLine(env *lineEnvelope) *LineEvent {
	var msg messageBody
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil
	}

	text := contentText(msg.Content)
	if text == "" {
		return nil // tool results round-trip through user messages
	}

	return &LineEvent{
		Kind:            KindPrompt,
		SourceSessionID: env.SessionID,
		WorkspacePath:   env.CWD,
		Timestamp:       parseTimestamp(env.Timestamp),
		Text:            text,
	}
}

func parseAssistantLine(env *lineEnvelope) *LineEvent {
	var msg messageBody
	if err := json.Unmarshal(env.Message, &msg); err != nil {
		return nil
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return nil
	}

	ev := &LineEvent{
		Kind:            KindResponse,
		SourceSessionID: env.SessionID,
		WorkspacePath:   env.CWD,
		Timestamp:       parseTimestamp(env.Timestamp),
	}

	fileSeen := make(map[string]bool)
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if ev.Text != "" {
				ev.Text += "\n"
			}
			ev.Text += b.Text

		case "tool_use":
			tc := model.ToolCall{Name: b.Name, Arguments: stringArguments(b.Input)}
			ev.ToolCalls = append(ev.ToolCalls, tc)

			if writeToolNames[b.Name] {
				if path := tc.Arguments["file_path"]; path != "" && !fileSeen[path] {
					fileSeen[path] = true
					ev.FilesModified = append(ev.FilesModified, path)
				}
			}
		}
	}

	if ev.Text == "" && len(ev.ToolCalls) == 0 {
		return nil
	}
	return ev
}

// contentText flattens a user message's content, which is either a bare
// string or an array of blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	text := ""
	for _, b := range blocks {
		if b.Type != "text" {
			continue
		}
		if text != "" {
			text += "\n"
		}
		text += b.Text
	}
	return text
}

// stringArguments keeps the string-valued fields of a tool input.
func stringArguments(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	out := make(map[string]string)
	for k, v := range generic {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func parseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// trimLine strips a UTF-8 BOM and surrounding whitespace.
func trimLine(line []byte) []byte {
	if len(line) >= 3 && line[0] == 0xEF && line[1] == 0xBB && line[2] == 0xBF {
		line = line[3:]
	}
	start := 0
	for start < len(line) && isSpace(line[start]) {
		start++
	}
	end := len(line)
	for end > start && isSpace(line[end-1]) {
		end--
	}
	return line[start:end]
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
