package discovery

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func TestDetectGitDirty(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
		)
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}

	run("init", "-b", "main")
	run("commit", "--allow-empty", "-m", "init")

	if detectGitDirty(repo) {
		t.Error("fresh repo should not be dirty")
	}

	if err := os.WriteFile(filepath.Join(repo, "untracked.txt"), []byte("x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !detectGitDirty(repo) {
		t.Error("repo with untracked file should be dirty")
	}
}

func TestDetectGitDirty_NotARepo(t *testing.T) {
	// Probe failure degrades to false, never an error.
	if detectGitDirty(t.TempDir()) {
		t.Error("non-repo directory should report clean")
	}
}

func TestDetectVSCode_MarkerDir(t *testing.T) {
	dir := t.TempDir()
	if detectVSCode(dir) {
		t.Error("bare directory should not report an editor")
	}

	if err := os.Mkdir(filepath.Join(dir, ".vscode-server"), 0755); err != nil {
		t.Fatal(err)
	}
	if !detectVSCode(dir) {
		t.Error("remote-session marker directory should report the editor")
	}
}

func TestDetectActivity_QuietWorktree(t *testing.T) {
	initial := time.Now().Add(-time.Hour)
	wt := &Worktree{
		Name:         "quiet",
		Path:         filepath.Join(t.TempDir(), "nonexistent"),
		Branch:       "main",
		LastActivity: initial,
	}

	DetectActivity(wt)

	if wt.HasClaude || wt.HasGemini || wt.HasVSCode || wt.GitDirty {
		t.Errorf("expected no activity signals, got %+v", wt)
	}
	// No signal fired, so the caller-provided timestamp stays untouched.
	if !wt.LastActivity.Equal(initial) {
		t.Errorf("LastActivity advanced without activity: %v", wt.LastActivity)
	}
}

func TestDetectActivitiesBatch_Empty(t *testing.T) {
	DetectActivitiesBatch(nil) // must not panic
}

func TestDetectActivitiesBatch_QuietWorktrees(t *testing.T) {
	wts := []*Worktree{
		{Name: "a", Path: filepath.Join(t.TempDir(), "missing-a")},
		{Name: "b", Path: filepath.Join(t.TempDir(), "missing-b")},
	}

	DetectActivitiesBatch(wts)

	for _, wt := range wts {
		if wt.GitDirty {
			t.Errorf("worktree %s: expected clean", wt.Name)
		}
		if wt.Agent != nil {
			t.Errorf("worktree %s: unexpected agent %+v", wt.Name, wt.Agent)
		}
	}
}
