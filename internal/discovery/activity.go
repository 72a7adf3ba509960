// pattern: Imperative Shell

package discovery

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"treetop/internal/process"
)

// agentSignatures maps agent type to the command-line substring that
// identifies its process. Detection order matters: the first type with a
// cwd match wins.
var agentSignatures = []struct {
	agentType string
	pattern   string
}{
	{"claude", "claude"},
	{"gemini", "gemini"},
}

// DetectActivity probes a worktree for agent, editor, and git activity.
// The three checks run in parallel and are joined before any result is
// written. Probe failures degrade their own signal to false; the caller
// never sees an error.
func DetectActivity(wt *Worktree) {
	var (
		wg        sync.WaitGroup
		agent     *AgentInfo
		hasVSCode bool
		gitDirty  bool
	)

	wg.Add(3)
	go func() {
		defer wg.Done()
		agent = detectAgent(wt.Path)
	}()
	go func() {
		defer wg.Done()
		hasVSCode = detectVSCode(wt.Path)
	}()
	go func() {
		defer wg.Done()
		gitDirty = detectGitDirty(wt.Path)
	}()
	wg.Wait()

	wt.Agent = agent
	wt.HasClaude = agent != nil && agent.Type == "claude"
	wt.HasGemini = agent != nil && agent.Type == "gemini"
	wt.HasVSCode = hasVSCode
	wt.GitDirty = gitDirty

	if agent != nil || hasVSCode || gitDirty {
		wt.LastActivity = time.Now()
	}
}

// detectAgent looks for an agent process whose working directory is
// exactly the worktree path.
func detectAgent(path string) *AgentInfo {
	for _, sig := range agentSignatures {
		pids := process.FindByCommand(sig.pattern)
		if len(pids) == 0 {
			continue
		}

		for pid, cwd := range process.CwdBatch(pids) {
			if cwd == path {
				return &AgentInfo{
					Type:      sig.agentType,
					PID:       pid,
					Path:      cwd,
					StartTime: process.StartTime(pid),
					Command:   process.Command(pid),
				}
			}
		}
	}
	return nil
}

// detectVSCode reports editor presence: a remote-session marker directory
// under the worktree, or an editor process carrying the worktree path on
// its command line.
func detectVSCode(path string) bool {
	marker := filepath.Join(path, ".vscode-server")
	if info, err := os.Stat(marker); err == nil && info.IsDir() {
		return true
	}

	for _, e := range process.List() {
		if strings.Contains(e.Command, "code") && strings.Contains(e.Command, path) {
			return true
		}
	}
	return false
}

// detectGitDirty reports whether the worktree has uncommitted changes.
func detectGitDirty(path string) bool {
	cmd := exec.Command("git", "-C", path, "status", "--porcelain")
	output, err := cmd.Output()
	if err != nil {
		return false
	}
	return len(strings.TrimSpace(string(output))) > 0
}

// DetectAllAgents finds every active agent process in one pass, keyed by
// working directory. One ps listing per agent type and one batched lsof
// call, instead of per-worktree probing.
func DetectAllAgents() map[string]*AgentInfo {
	agents := make(map[string]*AgentInfo)

	for _, sig := range agentSignatures {
		pids := process.FindByCommand(sig.pattern)
		if len(pids) == 0 {
			continue
		}

		for pid, cwd := range process.CwdBatch(pids) {
			if _, exists := agents[cwd]; exists {
				continue
			}
			agents[cwd] = &AgentInfo{
				Type:      sig.agentType,
				PID:       pid,
				Path:      cwd,
				StartTime: process.StartTime(pid),
				Command:   process.Command(pid),
			}
		}
	}

	return agents
}

// DetectAllVSCode returns the set of absolute paths that appear as
// arguments to editor processes, from a single process listing.
func DetectAllVSCode() map[string]bool {
	paths := make(map[string]bool)

	for _, e := range process.List() {
		if !strings.Contains(e.Command, "code") && !strings.Contains(e.Command, "Code") {
			continue
		}
		for _, field := range strings.Fields(e.Command) {
			if !strings.HasPrefix(field, "/") {
				continue
			}
			if info, err := os.Stat(field); err == nil && info.IsDir() {
				paths[field] = true
			}
		}
	}

	return paths
}

// DetectActivitiesBatch enriches many worktrees at once: agents and
// editor paths are gathered in single passes, git status runs in parallel
// per worktree.
func DetectActivitiesBatch(worktrees []*Worktree) {
	if len(worktrees) == 0 {
		return
	}

	agents := DetectAllAgents()
	vscodePaths := DetectAllVSCode()

	dirty := make([]bool, len(worktrees))
	var wg sync.WaitGroup
	for i, wt := range worktrees {
		wg.Add(1)
		go func(idx int, path string) {
			defer wg.Done()
			dirty[idx] = detectGitDirty(path)
		}(i, wt.Path)
	}
	wg.Wait()

	for i, wt := range worktrees {
		if agent, ok := agents[wt.Path]; ok {
			wt.Agent = agent
			wt.HasClaude = agent.Type == "claude"
			wt.HasGemini = agent.Type == "gemini"
		} else {
			wt.Agent = nil
			wt.HasClaude = false
			wt.HasGemini = false
		}

		wt.HasVSCode = vscodePaths[wt.Path]
		if !wt.HasVSCode {
			// The editor may be open on a parent directory of the worktree.
			for vsPath := range vscodePaths {
				if strings.HasPrefix(wt.Path, vsPath+"/") {
					wt.HasVSCode = true
					break
				}
			}
		}

		wt.GitDirty = dirty[i]

		if wt.Agent != nil || wt.HasVSCode || wt.GitDirty {
			wt.LastActivity = time.Now()
		}
	}
}
