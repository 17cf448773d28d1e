package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Snapshot is the full persisted state written under the "sessionState"
// key after any mutation. All timestamps serialize as ISO-8601 strings
// (RFC 3339) and are rehydrated to time.Time on load.
type Snapshot struct {
	Projects        []*Project     `json:"projects"`
	ActiveSessionID string         `json:"activeSessionId,omitempty"`
	ActiveProjectID string         `json:"activeProjectId,omitempty"`
	Config          SnapshotConfig `json:"config"`
	LastUpdated     time.Time      `json:"lastUpdated"`
}

// SnapshotConfig is the tunable slice of state carried inside the snapshot
// so it survives restarts alongside the data it governs.
type SnapshotConfig struct {
	MaxInactivityMinutes int `json:"maxInactivityMinutes"`
	MinPromptsForSession int `json:"minPromptsForSession"`

	// Goal-progress analysis cadence.
	MinPromptsForProgressAnalysis int `json:"minPromptsForProgressAnalysis,omitempty"`
	ProgressAnalysisInterval      int `json:"progressAnalysisInterval,omitempty"`
	ProgressAnalysisDebounceMs    int `json:"progressAnalysisDebounceMs,omitempty"`
}

// EncodeSnapshot serializes a snapshot for the durable KV.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot previously written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &s, nil
}
