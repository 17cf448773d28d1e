// Package ipc is the Unix-socket JSON protocol between the worklog CLI
// and the daemon. One request and one response per connection, each a
// single newline-terminated JSON object.
package ipc

// Command names understood by the daemon.
const (
	CmdPing       = "ping"
	CmdStatus     = "status"
	CmdStop       = "stop"
	CmdSessions   = "sessions"
	CmdStats      = "stats"
	CmdGoalStatus = "goal_status"
	CmdSummary    = "summary"
)

// Argument keys.
const (
	ArgSessionID    = "session_id"
	ArgProjectID    = "project_id"
	ArgActiveOnly   = "active_only"
	ArgTimeframe    = "timeframe"
	ArgInstructions = "instructions"
)

// Request is the client-to-daemon message.
type Request struct {
	Command string            `json:"command"`
	Args    map[string]string `json:"args,omitempty"`
}

// Response is the daemon-to-client message.
type Response struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// StatusData answers the "status" command.
type StatusData struct {
	Uptime          string `json:"uptime"`
	DBSizeBytes     int64  `json:"dbSizeBytes"`
	ProjectCount    int    `json:"projectCount"`
	SessionCount    int    `json:"sessionCount"`
	PromptCount     int    `json:"promptCount"`
	ActiveSessionID string `json:"activeSessionId,omitempty"`
	Provider        string `json:"provider,omitempty"`
}
