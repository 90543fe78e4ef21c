package crdt

import (
	"sort"
	"strconv"

	"github.com/nexops/operator/pkg/vectorclock"
)

// RGANode is one slot in a Replicated Growable Array. A tombstoned
// node (Value == nil) retains its id and position forever so that
// concurrent operations referencing it still resolve deterministically.
type RGANode struct {
	ID        string
	Value     interface{}
	Timestamp int64
	NodeID    string
}

// less implements the RGA's total order on nodes: (timestamp, nodeID)
// lexicographic, ascending.
func (n RGANode) less(o RGANode) bool {
	if n.Timestamp != o.Timestamp {
		return n.Timestamp < o.Timestamp
	}
	return n.NodeID < o.NodeID
}

func (n RGANode) tombstoned() bool { return n.Value == nil }

// RGA is an ordered, mergeable list CRDT. Inserts and deletes operate
// on the list's visible (non-tombstoned) positions; merge unions
// nodes by id — a tombstone always wins over a live node sharing an
// id — and the result is re-sorted by the node total order so every
// replica converges on the same sequence regardless of merge order.
type RGA struct {
	nodeID string
	nodes  []RGANode
	clock  *vectorclock.Clock
}

// NewRGA creates an empty list owned by nodeID.
func NewRGA(nodeID string) *RGA {
	return &RGA{nodeID: nodeID, clock: vectorclock.New()}
}

// Value returns the list's live (non-tombstoned) values in order.
func (r *RGA) Value() []interface{} {
	out := make([]interface{}, 0, len(r.nodes))
	for _, n := range r.nodes {
		if !n.tombstoned() {
			out = append(out, n.Value)
		}
	}
	return out
}

// Clock returns the RGA's own vector clock, advanced on every local
// insert/delete.
func (r *RGA) Clock() *vectorclock.Clock { return r.clock }

// Len returns the number of visible elements.
func (r *RGA) Len() int {
	n := 0
	for _, node := range r.nodes {
		if !node.tombstoned() {
			n++
		}
	}
	return n
}

// Insert places value at visible index, shifting subsequent visible
// elements right. index == Len() appends at the end.
func (r *RGA) Insert(index int, value interface{}, timestamp int64) {
	actualPos := len(r.nodes)
	visible := 0
	for i, n := range r.nodes {
		if visible == index {
			actualPos = i
			break
		}
		if !n.tombstoned() {
			visible++
		}
	}

	node := RGANode{ID: newNodeID(timestamp, r.nodeID), Value: value, Timestamp: timestamp, NodeID: r.nodeID}
	r.nodes = append(r.nodes, RGANode{})
	copy(r.nodes[actualPos+1:], r.nodes[actualPos:])
	r.nodes[actualPos] = node

	r.clock = r.clock.Increment(r.nodeID)
}

// Delete tombstones the visible node at index, preserving its id and
// position.
func (r *RGA) Delete(index int) {
	visible := 0
	for i := range r.nodes {
		if r.nodes[i].tombstoned() {
			continue
		}
		if visible == index {
			r.nodes[i].Value = nil
			r.clock = r.clock.Increment(r.nodeID)
			return
		}
		visible++
	}
}

// Merge unions nodes by id (a tombstone beats a live node for the
// same id on either side) and returns a new RGA sorted by the total
// node order. The merged clock is the pointwise max of both clocks.
func (r *RGA) Merge(other *RGA) *RGA {
	byID := make(map[string]RGANode)

	absorb := func(n RGANode) {
		existing, ok := byID[n.ID]
		if !ok {
			byID[n.ID] = n
			return
		}
		if n.tombstoned() && !existing.tombstoned() {
			byID[n.ID] = n
		}
		// else: keep existing (already a tombstone, or both live — identical node).
	}

	for _, n := range r.nodes {
		absorb(n)
	}
	if other != nil {
		for _, n := range other.nodes {
			absorb(n)
		}
	}

	merged := make([]RGANode, 0, len(byID))
	for _, n := range byID {
		merged = append(merged, n)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].less(merged[j]) })

	out := &RGA{nodeID: r.nodeID, nodes: merged, clock: r.clock}
	if other != nil {
		out.clock = r.clock.Merge(other.clock)
	}
	return out
}

// Nodes returns a copy of the raw node list, including tombstones,
// for snapshotting.
func (r *RGA) Nodes() []RGANode {
	out := make([]RGANode, len(r.nodes))
	copy(out, r.nodes)
	return out
}

// RGAFromNodes rebuilds an RGA from a previously snapshotted node
// list and clock.
func RGAFromNodes(nodeID string, nodes []RGANode, clock *vectorclock.Clock) *RGA {
	cp := make([]RGANode, len(nodes))
	copy(cp, nodes)
	if clock == nil {
		clock = vectorclock.New()
	}
	return &RGA{nodeID: nodeID, nodes: cp, clock: clock}
}

func newNodeID(timestamp int64, nodeID string) string {
	return nodeID + ":" + strconv.FormatInt(timestamp, 10)
}
