// pattern: Imperative Shell

package discovery

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"treetop/internal/names"
)

// skipDirs are dependency and cache directories of common ecosystems that
// never contain projects worth scanning.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"venv":         true,
	"target":       true,
	"dist":         true,
}

// Discover lists all worktrees of the repository at repoPath and probes
// each for activity. Failing to resolve the path or to run the listing
// command is a hard error; individual probe failures only degrade single
// activity flags.
func Discover(repoPath string) ([]*Worktree, error) {
	worktrees, err := listWorktrees(repoPath)
	if err != nil {
		return nil, err
	}

	for _, wt := range worktrees {
		DetectActivity(wt)
	}

	return worktrees, nil
}

// listWorktrees runs the porcelain listing and parses it, without any
// activity probing.
func listWorktrees(repoPath string) ([]*Worktree, error) {
	absPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", repoPath, err)
	}

	cmd := exec.Command("git", "worktree", "list", "--porcelain")
	cmd.Dir = absPath
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("listing worktrees in %s: %w", absPath, err)
	}

	return parseWorktreeList(string(output)), nil
}

// parseWorktreeList parses `git worktree list --porcelain` output.
// Format, one block per worktree, blank-line separated:
//
//	worktree /path/to/worktree
//	HEAD abc123
//	branch refs/heads/branch-name
//
// The first block is the main worktree; its path becomes MainRepo for
// every record in the batch. A block with no branch line is a detached
// HEAD and gets the fixed sentinels.
func parseWorktreeList(output string) []*Worktree {
	var worktrees []*Worktree
	var current *Worktree
	var mainRepo string

	now := time.Now()

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "worktree "):
			if current != nil {
				worktrees = append(worktrees, current)
			}

			path := strings.TrimPrefix(line, "worktree ")
			if mainRepo == "" {
				mainRepo = path
			}
			current = &Worktree{
				Path:         path,
				MainRepo:     mainRepo,
				DiscoveredAt: now,
				LastActivity: now,
			}

		case strings.HasPrefix(line, "branch ") && current != nil:
			branch := strings.TrimPrefix(line, "branch ")
			branch = strings.TrimPrefix(branch, "refs/heads/")
			current.Branch = branch
			current.Name = names.Sanitize(branch)

		case strings.HasPrefix(line, "HEAD ") && current != nil && current.Branch == "":
			current.Branch = DetachedBranch
			current.Name = DetachedName

		case strings.HasPrefix(line, "detached") && current != nil && current.Branch == "":
			current.Branch = DetachedBranch
			current.Name = DetachedName
		}
	}

	if current != nil {
		worktrees = append(worktrees, current)
	}

	return worktrees
}

// FindAll walks the directory tree under basePath looking for git
// repositories. Each repository root contributes its full worktree list
// (deduplicated by path, first occurrence wins) and is not descended
// into. Hidden directories and well-known dependency directories are
// skipped. A negative maxDepth means unlimited. Unreadable directories
// are treated as empty rather than aborting the scan. The merged result
// is activity-probed in one batched pass before returning.
func FindAll(basePath string, maxDepth int) ([]*Worktree, error) {
	var all []*Worktree
	seen := make(map[string]bool)

	var scan func(path string, depth int)
	scan = func(path string, depth int) {
		if maxDepth >= 0 && depth > maxDepth {
			return
		}

		gitPath := filepath.Join(path, ".git")
		if info, err := os.Stat(gitPath); err == nil && info.IsDir() {
			worktrees, err := listWorktrees(path)
			if err == nil {
				for _, wt := range worktrees {
					if !seen[wt.Path] {
						seen[wt.Path] = true
						all = append(all, wt)
					}
				}
			}
			// Repository roots are never descended into.
			return
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name := entry.Name()
			if strings.HasPrefix(name, ".") || skipDirs[name] {
				continue
			}
			scan(filepath.Join(path, name), depth+1)
		}
	}

	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", basePath, err)
	}

	scan(absBase, 0)
	DetectActivitiesBatch(all)
	return all, nil
}
