package collab

import (
	"fmt"
	"sync"

	"github.com/nexops/operator/pkg/shard"
)

// Manager owns the set of active collaboration sessions and the
// shard manager they share.
type Manager struct {
	mu           sync.Mutex
	sessions     map[string]*Session
	shardManager *shard.Manager
}

// NewManager constructs a Manager backed by shardManager.
func NewManager(shardManager *shard.Manager) *Manager {
	return &Manager{
		sessions:     make(map[string]*Session),
		shardManager: shardManager,
	}
}

// CreateSession starts a new session and registers it.
func (m *Manager) CreateSession(name string, maxParticipants int, settings Settings) *Session {
	session := NewSession(name, maxParticipants, settings, m.shardManager)

	m.mu.Lock()
	m.sessions[session.ID] = session
	m.mu.Unlock()
	return session
}

// GetSession looks up a session by id.
func (m *Manager) GetSession(sessionID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// CloseSession closes sessionID, if present.
func (m *Manager) CloseSession(sessionID string) bool {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return false
	}
	s.Close()
	return true
}

// ListSessions returns sessions optionally filtered by status,
// paginated by limit/offset.
func (m *Manager) ListSessions(status SessionStatus, limit, offset int) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*Session
	for _, s := range m.sessions {
		if status != "" && s.Status != status {
			continue
		}
		all = append(all, s)
	}

	if offset >= len(all) {
		return nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

// JoinResult is the payload returned to a new participant.
type JoinResult struct {
	Participant Participant
	ShardID     string
	State       []interface{}
}

// JoinSession adds entityID to sessionID and returns connection
// details for it.
func (m *Manager) JoinSession(sessionID, entityID, entityType string, role Role) (JoinResult, error) {
	session, ok := m.GetSession(sessionID)
	if !ok {
		return JoinResult{}, fmt.Errorf("collab: session %s not found", sessionID)
	}

	p, err := session.AddParticipant(entityID, entityType, role)
	if err != nil {
		return JoinResult{}, err
	}

	session.mu.Lock()
	state := session.state.Value()
	session.mu.Unlock()

	return JoinResult{Participant: *p, ShardID: p.ShardID, State: state}, nil
}

// LeaveSession removes participantID from sessionID.
func (m *Manager) LeaveSession(sessionID, participantID string) bool {
	session, ok := m.GetSession(sessionID)
	if !ok {
		return false
	}
	return session.RemoveParticipant(participantID)
}

// Stats is a point-in-time summary across every session.
type Stats struct {
	TotalSessions     int
	ActiveSessions    int
	TotalParticipants int
}

// Stats summarizes session counts and participant load.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Stats{TotalSessions: len(m.sessions)}
	for _, s := range m.sessions {
		if s.Status == SessionActive {
			stats.ActiveSessions++
		}
		stats.TotalParticipants += s.ParticipantCount()
	}
	return stats
}
