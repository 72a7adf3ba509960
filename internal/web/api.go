// pattern: Imperative Shell

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"treetop/internal/registry"
)

// WorkspaceResponse is the JSON representation of a workspace.
type WorkspaceResponse struct {
	Name         string          `json:"name"`
	Path         string          `json:"path"`
	Branch       string          `json:"branch"`
	MainRepo     string          `json:"main_repo,omitempty"`
	GitDirty     bool            `json:"git_dirty"`
	HasClaude    bool            `json:"has_claude"`
	HasGemini    bool            `json:"has_gemini,omitempty"`
	HasVSCode    bool            `json:"has_vscode"`
	LastActivity time.Time       `json:"last_activity,omitempty"`
	Tags         []string        `json:"tags,omitempty"`
	Server       *ServerResponse `json:"server,omitempty"`
}

// ServerResponse is the JSON representation of a workspace's dev server.
type ServerResponse struct {
	Port      int       `json:"port"`
	Status    string    `json:"status"`
	URL       string    `json:"url"`
	Health    string    `json:"health,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
}

// AgentResponse is the JSON representation of an active agent session.
type AgentResponse struct {
	Worktree  string    `json:"worktree"`
	Path      string    `json:"path"`
	Branch    string    `json:"branch"`
	Type      string    `json:"type"`
	PID       int       `json:"pid"`
	StartTime time.Time `json:"start_time,omitempty"`
	Duration  string    `json:"duration,omitempty"`
}

// HealthResponse is the health check payload.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// BuildWorkspaceResponses converts the registry snapshot to the wire
// shape. Exported because the hub broadcasts the same payload.
func BuildWorkspaceResponses(workspaces []*registry.Workspace) []WorkspaceResponse {
	result := make([]WorkspaceResponse, 0, len(workspaces))
	for _, ws := range workspaces {
		resp := WorkspaceResponse{
			Name:         ws.Name,
			Path:         ws.Path,
			Branch:       ws.Branch,
			MainRepo:     ws.MainRepo,
			GitDirty:     ws.GitDirty,
			HasClaude:    ws.HasClaude,
			HasGemini:    ws.HasGemini,
			HasVSCode:    ws.HasVSCode,
			LastActivity: ws.LastActivity,
			Tags:         ws.Tags,
		}
		if ws.Server != nil {
			resp.Server = &ServerResponse{
				Port:      ws.Server.Port,
				Status:    ws.Server.Status,
				URL:       ws.Server.URL,
				Health:    ws.Server.Health,
				StartedAt: ws.Server.StartedAt,
			}
			if ws.Server.Running() && !ws.Server.StartedAt.IsZero() {
				resp.Server.Uptime = formatDuration(time.Since(ws.Server.StartedAt))
			}
		}
		result = append(result, resp)
	}
	return result
}

// BuildAgentResponses converts the agent snapshot to the wire shape.
func BuildAgentResponses(agents []registry.Agent) []AgentResponse {
	result := make([]AgentResponse, 0, len(agents))
	for _, a := range agents {
		resp := AgentResponse{
			Worktree:  a.Worktree,
			Path:      a.Path,
			Branch:    a.Branch,
			Type:      a.Type,
			PID:       a.PID,
			StartTime: a.StartTime,
		}
		if !a.StartTime.IsZero() {
			resp.Duration = formatDuration(time.Since(a.StartTime))
		}
		result = append(result, resp)
	}
	return result
}

// handleWorkspaces handles GET /api/workspaces.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildWorkspaceResponses(s.registry.ListWorkspaces()))
}

// handleAgents handles GET /api/agents.
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, BuildAgentResponses(s.registry.ListAgents()))
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// writeJSON writes v as JSON with the given status and a permissive CORS
// policy; every consumer of this API is a read-only dashboard.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// formatDuration renders a duration the way dashboards display it:
// seconds under a minute, then m, h+m, d+h.
func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	default:
		days := int(d.Hours()) / 24
		return fmt.Sprintf("%dd%dh", days, int(d.Hours())%24)
	}
}
