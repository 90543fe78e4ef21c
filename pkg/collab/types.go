// Package collab composes the CRDT, vector clock, shard manager, and
// gossip protocol into a collaboration session, grounded on the
// reference CollaborationSession/SessionManager pair.
package collab

import (
	"time"

	"github.com/nexops/operator/pkg/vectorclock"
)

// Role is a participant's permission level within a session.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleEditor   Role = "editor"
	RoleViewer   Role = "viewer"
	RoleObserver Role = "observer"
)

// ParticipantStatus tracks connection liveness.
type ParticipantStatus string

const (
	ParticipantConnecting   ParticipantStatus = "connecting"
	ParticipantActive       ParticipantStatus = "active"
	ParticipantIdle         ParticipantStatus = "idle"
	ParticipantDisconnected ParticipantStatus = "disconnected"
)

// SessionStatus is a session's lifecycle state.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionClosing SessionStatus = "closing"
	SessionClosed  SessionStatus = "closed"
)

// Cursor is a participant's position within the collaborative
// document, opaque to the session itself.
type Cursor struct {
	Path           string
	Offset         int
	SelectionStart *int
	SelectionEnd   *int
	Metadata       map[string]interface{}
}

// Participant is one entity (agent, human, or system) attached to a
// session.
type Participant struct {
	ID              string
	SessionID       string
	EntityID        string
	EntityType      string
	Role            Role
	Status          ParticipantStatus
	ShardID         string
	Cursor          *Cursor
	LastOperationAt *time.Time
	JoinedAt        time.Time
}

// Operation is one change applied to a session's CRDT state.
type Operation struct {
	Type          string // "insert" | "delete"
	Index         int
	Value         interface{}
	ParticipantID string
	Clock         *vectorclock.Clock
	Timestamp     time.Time
}

// Settings are per-session tunables.
type Settings struct {
	AutoSnapshotInterval time.Duration
	MaxOperationBytes    int
	GossipIntervalMs     int
	ConflictResolution   string // "lww" | "manual" | "consensus"
}

// DefaultSettings mirrors the reference defaults.
func DefaultSettings() Settings {
	return Settings{
		AutoSnapshotInterval: 60 * time.Second,
		MaxOperationBytes:    1 << 20,
		GossipIntervalMs:     100,
		ConflictResolution:   "lww",
	}
}

// Snapshot is a point-in-time capture of session state.
type Snapshot struct {
	ID             string
	SessionID      string
	State          []interface{}
	Clock          *vectorclock.Clock
	OperationCount int
	SizeBytes      int
	CreatedAt      time.Time
}

// ApplyResult is returned from Session.ApplyOperation.
type ApplyResult struct {
	Clock       *vectorclock.Clock
	OperationID string
}
