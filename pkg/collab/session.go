package collab

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexops/operator/pkg/crdt"
	"github.com/nexops/operator/pkg/gossip"
	"github.com/nexops/operator/pkg/shard"
	"github.com/nexops/operator/pkg/vectorclock"
)

// Session is a collaboration session for up to MaxParticipants
// concurrent editors, backed by an RGA CRDT and replicated across
// shards via gossip.
type Session struct {
	mu sync.Mutex

	ID              string
	Name            string
	Status          SessionStatus
	MaxParticipants int
	Settings        Settings

	state        *crdt.RGA
	clock        *vectorclock.Clock
	participants map[string]*Participant
	operations   []Operation

	shardManager   *shard.Manager
	assignedShards map[string]struct{}
	primaryShard   string

	gossip *gossip.Protocol

	snapshots []Snapshot
	createdAt time.Time
	updatedAt time.Time
}

// NewSession constructs a session. shardManager may be nil, in which
// case participants are never assigned a shard and gossip is never
// started.
func NewSession(name string, maxParticipants int, settings Settings, shardManager *shard.Manager) *Session {
	id := uuid.New().String()
	if maxParticipants <= 0 {
		maxParticipants = 30000
	}
	now := time.Now().UTC()
	return &Session{
		ID:              id,
		Name:            name,
		Status:          SessionActive,
		MaxParticipants: maxParticipants,
		Settings:        settings,
		state:           crdt.NewRGA(id),
		clock:           vectorclock.New(),
		participants:    make(map[string]*Participant),
		shardManager:    shardManager,
		assignedShards:  make(map[string]struct{}),
		createdAt:       now,
		updatedAt:       now,
	}
}

// ParticipantCount reports how many participants are currently in
// the session.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// AddParticipant assigns participant a shard (if a shard manager is
// wired) and admits it to the session. A session's primary shard is
// lazily initialized from the first participant's assignment, which
// is also the point at which gossip starts — fixing a gap in the
// reference implementation, where gossip was wired only at session
// creation, before any participant (and therefore any shard) existed,
// leaving gossip permanently nil.
func (s *Session) AddParticipant(entityID, entityType string, role Role) (*Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.participants) >= s.MaxParticipants {
		return nil, fmt.Errorf("collab: session %s is at capacity", s.ID)
	}
	if s.Status != SessionActive {
		return nil, fmt.Errorf("collab: session %s is not active", s.ID)
	}

	p := &Participant{
		ID:         uuid.New().String(),
		SessionID:  s.ID,
		EntityID:   entityID,
		EntityType: entityType,
		Role:       role,
		Status:     ParticipantActive,
		JoinedAt:   time.Now().UTC(),
	}

	if s.shardManager != nil {
		shardID := s.shardManager.AssignShard(p.ID)
		p.ShardID = shardID
		if shardID != "" {
			s.assignedShards[shardID] = struct{}{}
			if s.primaryShard == "" {
				s.primaryShard = shardID
				s.gossip = gossip.New(shardID, gossip.WithIntervalMs(s.Settings.GossipIntervalMs))
			}
		}
	}

	s.participants[p.ID] = p
	s.updatedAt = time.Now().UTC()
	return p, nil
}

// RemoveParticipant releases a participant's shard slot and removes
// it from the session.
func (s *Session) RemoveParticipant(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return false
	}
	if s.shardManager != nil && p.ShardID != "" {
		s.shardManager.RemoveParticipant(participantID, p.ShardID)
	}
	delete(s.participants, participantID)
	s.updatedAt = time.Now().UTC()
	return true
}

// GetParticipant looks up a participant by id.
func (s *Session) GetParticipant(participantID string) (Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return Participant{}, false
	}
	return *p, true
}

// UpdateCursor records a participant's cursor position.
func (s *Session) UpdateCursor(participantID string, cursor Cursor) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[participantID]
	if !ok {
		return false
	}
	p.Cursor = &cursor
	return true
}

// ApplyOperation validates the participant, stamps op with the
// session's vector clock, applies it to the RGA, logs it, and hands
// it to gossip for propagation.
func (s *Session) ApplyOperation(op Operation, participantID string) (ApplyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantID]
	if !ok {
		return ApplyResult{}, fmt.Errorf("collab: participant %s not in session", participantID)
	}
	if p.Role == RoleViewer {
		return ApplyResult{}, fmt.Errorf("collab: viewers cannot apply operations")
	}

	s.clock = s.clock.Increment(participantID)
	now := time.Now().UTC()

	op.ParticipantID = participantID
	op.Clock = s.clock.Clone()
	op.Timestamp = now

	switch op.Type {
	case "insert":
		s.state.Insert(op.Index, op.Value, now.UnixNano())
	case "delete":
		s.state.Delete(op.Index)
	}

	s.operations = append(s.operations, op)
	p.LastOperationAt = &now
	s.updatedAt = now

	if s.gossip != nil {
		s.gossip.AddOperation(op)
	}

	return ApplyResult{Clock: s.clock.Clone(), OperationID: uuid.New().String()}, nil
}

// CreateSnapshot captures current state, clock, and size.
func (s *Session) CreateSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	value := s.state.Value()
	encoded, _ := json.Marshal(value)

	snap := Snapshot{
		ID:             uuid.New().String(),
		SessionID:      s.ID,
		State:          value,
		Clock:          s.clock.Clone(),
		OperationCount: len(s.operations),
		SizeBytes:      len(encoded),
		CreatedAt:      time.Now().UTC(),
	}
	s.snapshots = append(s.snapshots, snap)
	return snap
}

// GetStateDelta returns every operation whose clock happens after
// sinceClock. The session's current clock is not part of the result;
// Clock returns it separately.
func (s *Session) GetStateDelta(sinceClock *vectorclock.Clock) []Operation {
	s.mu.Lock()
	defer s.mu.Unlock()

	var delta []Operation
	for _, op := range s.operations {
		if op.Clock.HappensAfter(sinceClock) {
			delta = append(delta, op)
		}
	}
	return delta
}

// Clock returns a snapshot of the session's vector clock.
func (s *Session) Clock() *vectorclock.Clock {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Clone()
}

// PrimaryShard returns the shard the session's gossip protocol runs
// on, or "" if no participant has joined yet.
func (s *Session) PrimaryShard() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.primaryShard
}

// Close stops gossip, snapshots final state, and marks every
// participant disconnected.
func (s *Session) Close() Snapshot {
	s.mu.Lock()
	s.Status = SessionClosing
	s.mu.Unlock()

	snap := s.CreateSnapshot()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gossip != nil {
		s.gossip.Stop()
	}
	for _, p := range s.participants {
		p.Status = ParticipantDisconnected
	}
	s.Status = SessionClosed
	s.updatedAt = time.Now().UTC()
	return snap
}
