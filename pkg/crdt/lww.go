// Package crdt implements the conflict-free replicated data types used
// by collaboration sessions: LWW-Register, G-Counter, PN-Counter,
// OR-Set and RGA. Every type's Merge is commutative, associative and
// idempotent — the state after merge is the least upper bound of the
// two operands in the type's lattice.
package crdt

import "github.com/google/uuid"

// LWWRegister is a last-writer-wins register over an arbitrary value.
// Ties on timestamp are broken by the lexicographically larger node
// id, so merge is deterministic regardless of argument order.
type LWWRegister struct {
	value     interface{}
	timestamp int64
	nodeID    string
}

// NewLWWRegister creates a register with an initial value stamped at
// the given logical timestamp (typically a Unix nanosecond clock, or
// a gossip-assigned sequence number).
func NewLWWRegister(nodeID string, value interface{}, timestamp int64) *LWWRegister {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}
	return &LWWRegister{value: value, timestamp: timestamp, nodeID: nodeID}
}

// Value returns the current winning value.
func (r *LWWRegister) Value() interface{} {
	return r.value
}

// Set replaces the register's value at a new timestamp.
func (r *LWWRegister) Set(value interface{}, timestamp int64) {
	r.value = value
	r.timestamp = timestamp
}

// Merge returns the join of r and other: the operand with the higher
// timestamp wins; on a tie, the higher node id wins; otherwise r wins
// (idempotent when r == other).
func (r *LWWRegister) Merge(other *LWWRegister) *LWWRegister {
	if other == nil {
		return r.clone()
	}
	switch {
	case other.timestamp > r.timestamp:
		return other.clone()
	case other.timestamp < r.timestamp:
		return r.clone()
	case other.nodeID > r.nodeID:
		return other.clone()
	default:
		return r.clone()
	}
}

func (r *LWWRegister) clone() *LWWRegister {
	return &LWWRegister{value: r.value, timestamp: r.timestamp, nodeID: r.nodeID}
}

// LWWRegisterSnapshot is the serializable form of a register.
type LWWRegisterSnapshot struct {
	Value     interface{} `json:"value"`
	Timestamp int64       `json:"timestamp"`
	NodeID    string      `json:"node_id"`
}

// ToSnapshot serializes the register.
func (r *LWWRegister) ToSnapshot() LWWRegisterSnapshot {
	return LWWRegisterSnapshot{Value: r.value, Timestamp: r.timestamp, NodeID: r.nodeID}
}

// LWWRegisterFromSnapshot rebuilds a register from a snapshot.
func LWWRegisterFromSnapshot(s LWWRegisterSnapshot) *LWWRegister {
	return &LWWRegister{value: s.Value, timestamp: s.Timestamp, nodeID: s.NodeID}
}
