package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all daemon and service configuration.
type Config struct {
	DataDir    string `json:"data_dir"`
	SocketPath string `json:"socket_path"`
	DBPath     string `json:"db_path"`

	// SessionDirs are directories scanned for Claude Code JSONL session
	// files. Empty means the default ~/.claude/projects location.
	SessionDirs []string `json:"session_dirs"`

	// MaxInactivityMinutes is the staleness window: a session with no
	// activity for longer than this is rolled over on next use.
	MaxInactivityMinutes int `json:"max_inactivity_minutes"`

	// MinPromptsForSession is carried in the persisted snapshot config.
	MinPromptsForSession int `json:"min_prompts_for_session"`

	// Goal-progress analysis cadence.
	MinPromptsForProgressAnalysis int `json:"min_prompts_for_progress_analysis"`
	ProgressAnalysisInterval      int `json:"progress_analysis_interval"`
	ProgressAnalysisDebounceMs    int `json:"progress_analysis_debounce_ms"`
}

// DefaultDataDir returns the default data directory (~/.worklog).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".worklog")
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		DataDir:                       dataDir,
		SocketPath:                    filepath.Join(dataDir, "worklog.sock"),
		DBPath:                        filepath.Join(dataDir, "worklog.db"),
		SessionDirs:                   []string{},
		MaxInactivityMinutes:          120,
		MinPromptsForSession:          1,
		MinPromptsForProgressAnalysis: 2,
		ProgressAnalysisInterval:      3,
		ProgressAnalysisDebounceMs:    30000,
	}
}

// Load reads configuration from a JSON file, falling back to defaults
// for any unset fields.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file is fine, use defaults.
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Re-derive paths if DataDir was overridden but socket/db paths were not.
	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(cfg.DataDir, "worklog.sock")
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "worklog.db")
	}
	if cfg.MaxInactivityMinutes <= 0 {
		cfg.MaxInactivityMinutes = 120
	}
	if cfg.MinPromptsForProgressAnalysis <= 0 {
		cfg.MinPromptsForProgressAnalysis = 2
	}
	if cfg.ProgressAnalysisInterval <= 0 {
		cfg.ProgressAnalysisInterval = 3
	}
	if cfg.ProgressAnalysisDebounceMs <= 0 {
		cfg.ProgressAnalysisDebounceMs = 30000
	}

	return cfg, nil
}

// EnsureDataDir creates the data directory if it does not exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0755)
}

// ConfigPath returns the default path to the config file.
func ConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.json")
}
