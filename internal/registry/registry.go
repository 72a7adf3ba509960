// pattern: Imperative Shell

package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"treetop/internal/discovery"
	"treetop/internal/ports"
	"treetop/internal/process"
)

// ServerState is the dev-server half of a workspace, written by the
// external supervisor and merged into the next snapshot by name. The
// daemon never starts or stops servers itself.
type ServerState struct {
	Port      int       `json:"port"`
	PID       int       `json:"pid,omitempty"`
	Status    string    `json:"status"` // "running", "starting", "stopped", "error"
	URL       string    `json:"url"`
	Health    string    `json:"health,omitempty"` // "healthy", "unhealthy", ""
	StartedAt time.Time `json:"started_at,omitempty"`
}

// Running reports whether the server state claims a live process.
func (s *ServerState) Running() bool {
	return s.Status == "running" || s.Status == "starting"
}

// Workspace is the unified view of one worktree plus optional server
// state, as persisted and served to observers.
type Workspace struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Branch   string `json:"branch"`
	MainRepo string `json:"main_repo,omitempty"`

	GitDirty  bool `json:"git_dirty"`
	HasClaude bool `json:"has_claude"`
	HasGemini bool `json:"has_gemini,omitempty"`
	HasVSCode bool `json:"has_vscode"`

	DiscoveredAt time.Time `json:"discovered_at,omitempty"`
	LastActivity time.Time `json:"last_activity,omitempty"`

	Tags   []string     `json:"tags,omitempty"`
	Server *ServerState `json:"server,omitempty"`
}

// Agent is one active agent session, snapshotted alongside workspaces.
type Agent struct {
	Worktree  string    `json:"worktree"`
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	Type      string    `json:"type"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time,omitempty"`
}

// fileFormat is the on-disk registry shape, read by out-of-process
// observers (menubar widget, scripts) that never talk to the daemon.
type fileFormat struct {
	Version    int                   `json:"version"`
	UpdatedAt  time.Time             `json:"updated_at"`
	Workspaces map[string]*Workspace `json:"workspaces"`
	Agents     []Agent               `json:"agents,omitempty"`
}

const fileVersion = 1

// Registry holds the latest snapshot in memory and mirrors it to a JSON
// file. Snapshots are replaced wholesale; only server state and tags
// survive from one pass to the next, keyed by workspace name.
type Registry struct {
	mu         sync.RWMutex
	path       string
	fl         *flock.Flock
	workspaces map[string]*Workspace
	agents     []Agent
}

// Open creates a registry backed by the given file, loading any existing
// contents. A missing file is not an error.
func Open(path string) (*Registry, error) {
	r := &Registry{
		path:       path,
		fl:         flock.New(path + ".lock"),
		workspaces: make(map[string]*Workspace),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the registry file path.
func (r *Registry) Path() string {
	return r.path
}

// Reload re-reads the registry file, replacing the in-memory state.
// Used at startup and when an external writer touches the file.
func (r *Registry) Reload() error {
	if err := r.fl.RLock(); err != nil {
		return fmt.Errorf("locking registry: %w", err)
	}
	data, readErr := os.ReadFile(r.path)
	_ = r.fl.Unlock()

	if readErr != nil {
		if os.IsNotExist(readErr) {
			return nil
		}
		return fmt.Errorf("reading registry %s: %w", r.path, readErr)
	}

	var f fileFormat
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parsing registry %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if f.Workspaces != nil {
		r.workspaces = f.Workspaces
	}
	r.agents = f.Agents
	return nil
}

// Save writes the current state to the registry file under the file
// lock, via a temp file and rename so observers never see a torn write.
func (r *Registry) Save() error {
	r.mu.RLock()
	f := fileFormat{
		Version:    fileVersion,
		UpdatedAt:  time.Now().UTC(),
		Workspaces: r.workspaces,
		Agents:     r.agents,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding registry: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating registry directory: %w", err)
	}

	if err := r.fl.Lock(); err != nil {
		return fmt.Errorf("locking registry: %w", err)
	}
	defer func() { _ = r.fl.Unlock() }()

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replacing registry: %w", err)
	}
	return nil
}

// ReplaceSnapshot installs a fresh discovery pass as the current state
// and persists it. Server state and tags carry over from the previous
// snapshot by workspace name; everything else comes from the new pass.
func (r *Registry) ReplaceSnapshot(worktrees []*discovery.Worktree) error {
	fresh := make(map[string]*Workspace, len(worktrees))
	var agents []Agent

	r.mu.Lock()
	for _, wt := range worktrees {
		ws := &Workspace{
			Name:         wt.Name,
			Path:         wt.Path,
			Branch:       wt.Branch,
			MainRepo:     wt.MainRepo,
			GitDirty:     wt.GitDirty,
			HasClaude:    wt.HasClaude,
			HasGemini:    wt.HasGemini,
			HasVSCode:    wt.HasVSCode,
			DiscoveredAt: wt.DiscoveredAt,
			LastActivity: wt.LastActivity,
		}

		if prev, ok := r.workspaces[ws.Name]; ok {
			ws.Server = prev.Server
			ws.Tags = prev.Tags
		}

		// First occurrence wins, matching discovery's dedup-by-path rule.
		if _, dup := fresh[ws.Name]; !dup {
			fresh[ws.Name] = ws
		}

		if wt.Agent != nil {
			agents = append(agents, Agent{
				Worktree:  wt.Name,
				Path:      wt.Path,
				Branch:    wt.Branch,
				Type:      wt.Agent.Type,
				PID:       wt.Agent.PID,
				StartTime: wt.Agent.StartTime,
			})
		}
	}
	r.workspaces = fresh
	r.agents = agents
	r.mu.Unlock()

	return r.Save()
}

// ListWorkspaces returns the current snapshot ordered by name.
func (r *Registry) ListWorkspaces() []*Workspace {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Workspace, 0, len(r.workspaces))
	for _, ws := range r.workspaces {
		result = append(result, ws)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListAgents returns the current agent snapshot.
func (r *Registry) ListAgents() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Agent(nil), r.agents...)
}

// Get returns the workspace with the given name.
func (r *Registry) Get(name string) (*Workspace, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ws, ok := r.workspaces[name]
	return ws, ok
}

// Cleanup drops server state whose process is gone and whose port no
// longer answers, then persists if anything changed. Returns the names
// of the workspaces that were cleaned.
func (r *Registry) Cleanup() ([]string, error) {
	var cleaned []string

	r.mu.Lock()
	for name, ws := range r.workspaces {
		if ws.Server == nil || !ws.Server.Running() {
			continue
		}
		if process.IsRunning(ws.Server.PID) {
			continue
		}
		if ports.IsListening(ws.Server.Port) {
			// Something still answers; the PID may just be unreadable.
			continue
		}
		ws.Server = nil
		cleaned = append(cleaned, name)
	}
	r.mu.Unlock()

	if len(cleaned) == 0 {
		return nil, nil
	}
	return cleaned, r.Save()
}
