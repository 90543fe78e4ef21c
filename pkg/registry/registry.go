package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexops/operator/pkg/ledger"
)

const defaultOfflineThreshold = 60 * time.Second

// Registry is the authoritative agent inventory and session table.
// Every structural change to the agent/session maps is serialized by
// a single mutex; session Send/Close calls happen outside it, per
// §4.1's shared-resource policy.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*Agent
	sessions map[string]Session

	offlineThreshold time.Duration
	ledger           *ledger.Service
	logger           *slog.Logger
}

// Option configures a Registry at construction time.
type Option func(*Registry)

// WithOfflineThreshold overrides the default 60s staleness window.
func WithOfflineThreshold(d time.Duration) Option {
	return func(r *Registry) { r.offlineThreshold = d }
}

// WithLedger wires an audit ledger; register/unregister emit
// AGENT_CONNECTED/AGENT_DISCONNECTED events through it when set.
func WithLedger(l *ledger.Service) Option {
	return func(r *Registry) { r.ledger = l }
}

// New constructs an empty Registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		agents:           make(map[string]*Agent),
		sessions:         make(map[string]Session),
		offlineThreshold: defaultOfflineThreshold,
		logger:           logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register inserts a new agent or refreshes an existing one, sets
// status=ONLINE, and replaces its session. Idempotent on reconnect.
func (r *Registry) Register(reg Registration, session Session) *Agent {
	r.mu.Lock()
	now := time.Now().UTC()

	agent, existed := r.agents[reg.ID]
	if existed {
		agent.Hostname = reg.Hostname
		if reg.DisplayName != "" {
			agent.DisplayName = reg.DisplayName
		}
		if len(reg.Roles) > 0 {
			agent.Roles = reg.Roles
		}
		if len(reg.Tags) > 0 {
			agent.Tags = reg.Tags
		}
		agent.Capabilities = reg.Capabilities
		agent.Status = StatusOnline
		agent.LastSeen = now
	} else {
		displayName := reg.DisplayName
		if displayName == "" {
			displayName = reg.ID
		}
		agent = &Agent{
			ID:           reg.ID,
			Hostname:     reg.Hostname,
			DisplayName:  displayName,
			Status:       StatusOnline,
			Roles:        reg.Roles,
			Tags:         reg.Tags,
			Capabilities: reg.Capabilities,
			LastSeen:     now,
			RegisteredAt: now,
		}
		r.agents[reg.ID] = agent
	}

	old := r.sessions[reg.ID]
	r.sessions[reg.ID] = session
	r.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}

	if existed {
		r.logger.Info("agent reconnected", "agent_id", reg.ID)
	} else {
		r.logger.Info("agent registered", "agent_id", reg.ID, "hostname", reg.Hostname)
	}
	r.emitConnected(reg.ID, reg.Hostname)

	return agent
}

// Unregister closes an agent's session slot and marks it OFFLINE.
// Idempotent: unregistering an unknown or already-offline agent is a
// no-op beyond the audit event.
func (r *Registry) Unregister(agentID string) {
	r.mu.Lock()
	session, hadSession := r.sessions[agentID]
	delete(r.sessions, agentID)
	if agent, ok := r.agents[agentID]; ok {
		agent.Status = StatusOffline
	}
	r.mu.Unlock()

	if hadSession && session != nil {
		_ = session.Close()
	}
	r.logger.Info("agent disconnected", "agent_id", agentID)
	r.emitDisconnected(agentID, "normal")
}

// Heartbeat applies a telemetry report: updates last_seen, telemetry,
// current_task_id, workspaces, and derives status (BUSY iff a task is
// assigned, else ONLINE). Unknown agents are logged and ignored.
func (r *Registry) Heartbeat(hb Heartbeat) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[hb.AgentID]
	if !ok {
		r.logger.Warn("heartbeat from unknown agent", "agent_id", hb.AgentID)
		return
	}

	agent.Telemetry = hb.Telemetry
	agent.CurrentTaskID = hb.CurrentTaskID
	agent.Workspaces = hb.Workspaces
	agent.LastSeen = time.Now().UTC()
	if hb.CurrentTaskID != "" {
		agent.Status = StatusBusy
	} else if agent.Status != StatusError {
		agent.Status = StatusOnline
	}
}

// Get returns a single agent by id.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// All returns an immutable snapshot of every registered agent.
func (r *Registry) All() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, *a)
	}
	return out
}

// Online returns every agent whose status is ONLINE.
func (r *Registry) Online() []Agent {
	return r.filter(func(a *Agent) bool { return a.Status == StatusOnline })
}

// Available returns every agent that can accept a new task.
func (r *Registry) Available() []Agent {
	return r.filter(func(a *Agent) bool { return a.IsAvailable() })
}

// ByRole returns every agent carrying role.
func (r *Registry) ByRole(role string) []Agent {
	return r.filter(func(a *Agent) bool { return a.HasRole(role) })
}

func (r *Registry) filter(pred func(*Agent) bool) []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Agent
	for _, a := range r.agents {
		if pred(a) {
			out = append(out, *a)
		}
	}
	return out
}

// Send delivers message to agentID's session. On failure the agent is
// unregistered (the registry provides at-most-once delivery with no
// internal retry).
func (r *Registry) Send(ctx context.Context, agentID string, message interface{}) error {
	r.mu.RLock()
	session, ok := r.sessions[agentID]
	r.mu.RUnlock()
	if !ok || session == nil {
		return fmt.Errorf("registry: no active session for agent %s", agentID)
	}

	if err := session.Send(ctx, message); err != nil {
		r.logger.Error("send to agent failed", "agent_id", agentID, "error", err)
		r.Unregister(agentID)
		return fmt.Errorf("registry: send to %s: %w", agentID, err)
	}
	return nil
}

// Broadcast best-effort fans a message out to every session, optionally
// restricted to agents carrying at least one of roleFilter.
func (r *Registry) Broadcast(ctx context.Context, message interface{}, roleFilter ...string) {
	r.mu.RLock()
	type target struct {
		id      string
		session Session
	}
	targets := make([]target, 0, len(r.sessions))
	for id, session := range r.sessions {
		agent, ok := r.agents[id]
		if !ok {
			continue
		}
		if len(roleFilter) > 0 && !hasAnyRole(agent, roleFilter) {
			continue
		}
		targets = append(targets, target{id: id, session: session})
	}
	r.mu.RUnlock()

	for _, t := range targets {
		if err := t.session.Send(ctx, message); err != nil {
			r.logger.Error("broadcast to agent failed", "agent_id", t.id, "error", err)
		}
	}
}

func hasAnyRole(a *Agent, roles []string) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}

// CheckHealth marks any ONLINE agent whose last_seen exceeds the
// offline threshold as OFFLINE and drops its session. Intended to be
// called on a periodic ticker by the owning process.
func (r *Registry) CheckHealth() {
	now := time.Now().UTC()

	r.mu.Lock()
	var timedOut []string
	for id, agent := range r.agents {
		if agent.Status == StatusOnline && !agent.LastSeen.IsZero() && now.Sub(agent.LastSeen) > r.offlineThreshold {
			agent.Status = StatusOffline
			timedOut = append(timedOut, id)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, id := range timedOut {
		r.logger.Warn("agent timed out", "agent_id", id)
	}
}

func (r *Registry) emitConnected(agentID, hostname string) {
	if r.ledger == nil {
		return
	}
	if _, err := r.ledger.Record(ledger.EventCreate{
		CorrelationID: uuid.New(),
		Layer:         ledger.LayerMesh,
		Actor:         ledger.Actor{AgentID: agentID},
		Action:        "agent:connected",
		ResourceType:  "agent",
		ResourceID:    agentID,
		Decision:      ledger.DecisionAllow,
		LedgerLevel:   ledger.LevelAction,
		Metadata:      map[string]interface{}{"hostname": hostname},
	}); err != nil {
		r.logger.Error("failed to record agent connect event", "agent_id", agentID, "error", err)
	}
}

func (r *Registry) emitDisconnected(agentID, reason string) {
	if r.ledger == nil {
		return
	}
	if _, err := r.ledger.Record(ledger.EventCreate{
		CorrelationID: uuid.New(),
		Layer:         ledger.LayerMesh,
		Actor:         ledger.Actor{AgentID: agentID},
		Action:        "agent:disconnected",
		ResourceType:  "agent",
		ResourceID:    agentID,
		Decision:      ledger.DecisionAllow,
		LedgerLevel:   ledger.LevelDecision,
		Metadata:      map[string]interface{}{"reason": reason},
	}); err != nil {
		r.logger.Error("failed to record agent disconnect event", "agent_id", agentID, "error", err)
	}
}
