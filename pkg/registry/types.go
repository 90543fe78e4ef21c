// Package registry maintains the authoritative live view of every
// connected agent and the message channel to reach it, grounded on
// the reference controller's AgentRegistry/AgentConnection pair and
// generalized to the teacher's ConnectionManager locking discipline.
package registry

import "time"

// Status is the agent's current lifecycle state.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
	StatusBusy    Status = "BUSY"
	StatusError   Status = "ERROR"
)

// Workspace is a directory an agent can execute commands in.
type Workspace struct {
	Path string `json:"path"`
	Type string `json:"type"` // "bare" | "docker" | "venv"
}

// Telemetry is the most recent heartbeat's resource snapshot.
type Telemetry struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	LoadAverage   []float64 `json:"load_average,omitempty"`
}

// Capabilities describes what an agent can run.
type Capabilities struct {
	Docker          bool              `json:"docker,omitempty"`
	RuntimeVersions map[string]string `json:"runtime_versions,omitempty"`
	ResourceHints   map[string]string `json:"resource_hints,omitempty"`
}

// Agent is the registry's authoritative record for one worker
// machine. status=BUSY iff CurrentTaskID is set (enforced by the
// registry, never by callers mutating the struct directly).
type Agent struct {
	ID            string       `json:"id"`
	Hostname      string       `json:"hostname"`
	DisplayName   string       `json:"display_name"`
	Status        Status       `json:"status"`
	Roles         []string     `json:"roles"`
	Tags          []string     `json:"tags"`
	Capabilities  Capabilities `json:"capabilities"`
	Workspaces    []Workspace  `json:"workspaces,omitempty"`
	Telemetry     Telemetry    `json:"telemetry"`
	LastSeen      time.Time    `json:"last_seen"`
	RegisteredAt  time.Time    `json:"registered_at"`
	CurrentTaskID string       `json:"current_task_id,omitempty"`
}

// IsAvailable reports whether the agent can accept a new task.
func (a *Agent) IsAvailable() bool {
	return a.Status == StatusOnline && a.CurrentTaskID == ""
}

// HasRole reports whether role appears in the agent's role set.
func (a *Agent) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Registration is the payload of the agent-initiated "register"
// frame that must open every session.
type Registration struct {
	ID           string       `json:"id"`
	Hostname     string       `json:"hostname"`
	DisplayName  string       `json:"display_name,omitempty"`
	Roles        []string     `json:"roles"`
	Tags         []string     `json:"tags"`
	Capabilities Capabilities `json:"capabilities"`
	Secret       string       `json:"secret,omitempty"`
}

// Heartbeat is the payload of a "heartbeat" frame.
type Heartbeat struct {
	AgentID       string      `json:"agent_id"`
	Timestamp     time.Time   `json:"timestamp"`
	Telemetry     Telemetry   `json:"telemetry"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	Workspaces    []Workspace `json:"workspaces,omitempty"`
}
