// pattern: Functional Core

package discovery

import "time"

// Detached-HEAD sentinels. A worktree checked out at a bare commit has no
// branch, so parsing substitutes these fixed values.
const (
	DetachedBranch = "HEAD"
	DetachedName   = "detached-head"
)

// AgentInfo describes an active coding-agent session rooted in a worktree.
type AgentInfo struct {
	Type      string    `json:"type"` // "claude", "gemini"
	PID       int       `json:"pid"`
	Path      string    `json:"path"`       // working directory
	StartTime time.Time `json:"start_time"` // process start time, zero if unknown
	Command   string    `json:"command"`    // full command line
}

// Worktree is one git working tree discovered in a scan pass. Records are
// built fresh each pass and replaced wholesale, never patched in place
// across passes.
type Worktree struct {
	Name         string    `json:"name"`      // sanitized stable identifier
	Path         string    `json:"path"`      // absolute path, unique per pass
	Branch       string    `json:"branch"`    // ref name, or DetachedBranch
	MainRepo     string    `json:"main_repo"` // root worktree of the same repository
	DiscoveredAt time.Time `json:"discovered_at"`
	LastActivity time.Time `json:"last_activity"`

	// Activity signals, each an independent best-effort heuristic.
	HasServer bool `json:"has_server"`
	HasClaude bool `json:"has_claude"`
	HasGemini bool `json:"has_gemini"`
	HasVSCode bool `json:"has_vscode"`
	GitDirty  bool `json:"git_dirty"`

	// Agent carries detail when an agent process was matched.
	Agent *AgentInfo `json:"agent,omitempty"`
}
