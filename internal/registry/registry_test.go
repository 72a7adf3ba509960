package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"treetop/internal/discovery"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Open(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return r
}

func TestOpen_MissingFile(t *testing.T) {
	r := testRegistry(t)
	if got := r.ListWorkspaces(); len(got) != 0 {
		t.Fatalf("expected empty registry, got %d workspaces", len(got))
	}
}

func TestReplaceSnapshot_OrderedByName(t *testing.T) {
	r := testRegistry(t)

	err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "zeta", Path: "/p/zeta", Branch: "zeta"},
		{Name: "alpha", Path: "/p/alpha", Branch: "alpha"},
		{Name: "mid", Path: "/p/mid", Branch: "mid"},
	})
	if err != nil {
		t.Fatalf("ReplaceSnapshot: %v", err)
	}

	got := r.ListWorkspaces()
	if len(got) != 3 {
		t.Fatalf("expected 3 workspaces, got %d", len(got))
	}
	for i, want := range []string{"alpha", "mid", "zeta"} {
		if got[i].Name != want {
			t.Errorf("workspace %d: name = %q, want %q", i, got[i].Name, want)
		}
	}
}

func TestReplaceSnapshot_WholesaleReplacement(t *testing.T) {
	r := testRegistry(t)

	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "old", Path: "/p/old", Branch: "old"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "new", Path: "/p/new", Branch: "new"},
	}); err != nil {
		t.Fatal(err)
	}

	got := r.ListWorkspaces()
	if len(got) != 1 || got[0].Name != "new" {
		t.Fatalf("expected only the new snapshot to survive, got %+v", got)
	}
}

func TestReplaceSnapshot_ServerStateCarriesOver(t *testing.T) {
	r := testRegistry(t)

	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "feature-auth", Path: "/p/fa", Branch: "feature/auth"},
	}); err != nil {
		t.Fatal(err)
	}

	// Simulate the external supervisor attaching server state.
	ws, ok := r.Get("feature-auth")
	if !ok {
		t.Fatal("workspace not found")
	}
	ws.Server = &ServerState{Port: 4001, Status: "running", URL: "http://localhost:4001"}
	ws.Tags = []string{"pinned"}

	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "feature-auth", Path: "/p/fa", Branch: "feature/auth", GitDirty: true},
	}); err != nil {
		t.Fatal(err)
	}

	got, _ := r.Get("feature-auth")
	if got.Server == nil || got.Server.Port != 4001 {
		t.Errorf("server state did not carry over: %+v", got.Server)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "pinned" {
		t.Errorf("tags did not carry over: %v", got.Tags)
	}
	if !got.GitDirty {
		t.Error("fresh activity flags must come from the new pass")
	}
}

func TestReplaceSnapshot_AgentSnapshot(t *testing.T) {
	r := testRegistry(t)

	start := time.Now().Add(-10 * time.Minute)
	err := r.ReplaceSnapshot([]*discovery.Worktree{
		{
			Name: "feature-auth", Path: "/p/fa", Branch: "feature/auth",
			HasClaude: true,
			Agent:     &discovery.AgentInfo{Type: "claude", PID: 4242, Path: "/p/fa", StartTime: start},
		},
		{Name: "idle", Path: "/p/idle", Branch: "idle"},
	})
	if err != nil {
		t.Fatal(err)
	}

	agents := r.ListAgents()
	if len(agents) != 1 {
		t.Fatalf("expected 1 agent, got %d", len(agents))
	}
	a := agents[0]
	if a.Worktree != "feature-auth" || a.Type != "claude" || a.PID != 4242 {
		t.Errorf("unexpected agent record: %+v", a)
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")

	r, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "main", Path: "/p/main", Branch: "main", GitDirty: true},
	}); err != nil {
		t.Fatal(err)
	}

	// A second registry over the same file sees the persisted snapshot,
	// the way an out-of-process observer would.
	r2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	got := r2.ListWorkspaces()
	if len(got) != 1 || got[0].Name != "main" || !got[0].GitDirty {
		t.Fatalf("reloaded snapshot mismatch: %+v", got)
	}
}

func TestReload_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Error("expected error for corrupt registry file")
	}
}

func TestCleanup_DeadServer(t *testing.T) {
	r := testRegistry(t)

	if err := r.ReplaceSnapshot([]*discovery.Worktree{
		{Name: "dead", Path: "/p/dead", Branch: "dead"},
		{Name: "none", Path: "/p/none", Branch: "none"},
	}); err != nil {
		t.Fatal(err)
	}

	ws, _ := r.Get("dead")
	// PID 1 is always alive; use an absurd PID and a port nothing serves.
	ws.Server = &ServerState{Port: 1, PID: 1 << 30, Status: "running"}

	cleaned, err := r.Cleanup()
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(cleaned) != 1 || cleaned[0] != "dead" {
		t.Fatalf("cleaned = %v, want [dead]", cleaned)
	}

	got, _ := r.Get("dead")
	if got.Server != nil {
		t.Error("expected dead server state to be removed")
	}
}
