// Package project derives stable project identity and display names from
// workspace paths and optional VCS metadata.
package project

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	git "github.com/go-git/go-git/v5"

	"github.com/anthropic/worklog/internal/model"
	"github.com/anthropic/worklog/internal/store"
)

// Host provides the ambient workspace facts the detector consumes.
// Injected so tests and embedded hosts can replace process globals.
type Host interface {
	// WorkspacePath returns the current workspace folder, or "" when no
	// workspace is open.
	WorkspacePath() string

	// WorkspaceName returns the host-supplied folder display name, or "".
	WorkspaceName() string

	// Getenv reads the host environment.
	Getenv(key string) string
}

// OSHost reads workspace facts from the process environment and CWD.
type OSHost struct{}

// workspaceEnvKeys are checked in order for an explicit workspace path.
var workspaceEnvKeys = []string{"WORKLOG_WORKSPACE", "WORKSPACE_FOLDER", "VSCODE_CWD", "INIT_CWD"}

// WorkspacePath prefers explicit host environment variables, then the CWD.
func (OSHost) WorkspacePath() string {
	for _, key := range workspaceEnvKeys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if abs, err := filepath.Abs(v); err == nil {
				return abs
			}
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}
	return cwd
}

// WorkspaceName returns "" so name derivation falls through to VCS/basename.
func (OSHost) WorkspaceName() string { return "" }

// Getenv reads the process environment.
func (OSHost) Getenv(key string) string { return os.Getenv(key) }

// Detector resolves the current project against the entity store.
type Detector struct {
	store *store.Store
	host  Host
}

// NewDetector creates a Detector bound to the store and host environment.
func NewDetector(st *store.Store, host Host) *Detector {
	if host == nil {
		host = OSHost{}
	}
	return &Detector{store: st, host: host}
}

// DetectWorkspace returns the normalized workspace path and the best
// display name for it. ok is false when no workspace is detectable.
func (d *Detector) DetectWorkspace() (path, name string, ok bool) {
	raw := d.host.WorkspacePath()
	if raw == "" {
		return "", "", false
	}
	path = model.NormalizePath(raw)
	return path, DisplayName(path, d.host.WorkspaceName()), true
}

// DetectCurrentProject returns the project for the current workspace, or
// nil when no workspace is open or the project does not exist yet.
func (d *Detector) DetectCurrentProject() *model.Project {
	path, _, ok := d.DetectWorkspace()
	if !ok {
		return nil
	}
	return d.store.FindProjectByPath(path)
}

// DetectPlatform infers the originating platform from the host environment.
// Unknown hosts map to vscode, matching the source-id mapping table.
func (d *Detector) DetectPlatform() model.Platform {
	if d.host.Getenv("CLAUDECODE") != "" || d.host.Getenv("CLAUDE_CODE_ENTRYPOINT") != "" {
		return model.PlatformClaudeCode
	}
	switch strings.ToLower(d.host.Getenv("TERM_PROGRAM")) {
	case "cursor":
		return model.PlatformCursor
	case "vscode":
		return model.PlatformVSCode
	}
	if d.host.Getenv("CURSOR_TRACE_ID") != "" {
		return model.PlatformCursor
	}
	return model.PlatformVSCode
}

// DisplayName derives a project display name, in priority order: the
// owner/repo parsed from the VCS remote, the host-supplied folder name,
// then the path basename.
func DisplayName(path, workspaceName string) string {
	if ownerRepo, ok := remoteOwnerRepo(path); ok {
		return ownerRepo
	}
	if workspaceName != "" {
		return workspaceName
	}
	return filepath.Base(path)
}

// remoteOwnerRepo opens the repository at path and parses "owner/repo"
// from its origin remote URL.
func remoteOwnerRepo(path string) (string, bool) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", false
	}
	remote, err := repo.Remote("origin")
	if err != nil {
		return "", false
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", false
	}
	return ParseOwnerRepo(urls[0])
}

var (
	// git@host:owner/repo(.git)?
	sshRemoteRe = regexp.MustCompile(`^[\w.-]+@[\w.-]+:([\w.-]+)/([\w.-]+?)(?:\.git)?$`)
	// https://host/owner/repo(.git)?
	httpsRemoteRe = regexp.MustCompile(`^https?://[\w.-]+(?::\d+)?/([\w.-]+)/([\w.-]+?)(?:\.git)?/?$`)
)

// ParseOwnerRepo extracts "owner/repo" from an SSH or HTTPS remote URL.
func ParseOwnerRepo(url string) (string, bool) {
	url = strings.TrimSpace(url)
	if m := sshRemoteRe.FindStringSubmatch(url); m != nil {
		return m[1] + "/" + m[2], true
	}
	if m := httpsRemoteRe.FindStringSubmatch(url); m != nil {
		return m[1] + "/" + m[2], true
	}
	return "", false
}
