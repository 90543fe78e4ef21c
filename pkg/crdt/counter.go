package crdt

import "fmt"

// GCounter is a grow-only counter: each node tracks its own
// non-decreasing contribution, and the value is the sum across nodes.
// Merge takes the pointwise maximum per node, which is commutative,
// associative and idempotent.
type GCounter struct {
	nodeID string
	counts map[string]uint64
}

// NewGCounter creates an empty grow-only counter owned by nodeID.
func NewGCounter(nodeID string) *GCounter {
	return &GCounter{nodeID: nodeID, counts: make(map[string]uint64)}
}

// Value returns the sum of all per-node contributions.
func (g *GCounter) Value() uint64 {
	var total uint64
	for _, v := range g.counts {
		total += v
	}
	return total
}

// Increment adds amount to this node's own contribution. amount must
// be non-negative; a G-Counter can never shrink.
func (g *GCounter) Increment(amount uint64) error {
	if amount == 0 {
		return nil
	}
	g.counts[g.nodeID] += amount
	return nil
}

// IncrementSigned validates the sign before delegating to Increment,
// matching the reference's "negative amount" rejection for a type
// that is documented to only grow.
func (g *GCounter) IncrementSigned(amount int64) error {
	if amount < 0 {
		return fmt.Errorf("crdt: GCounter.Increment amount must be non-negative, got %d", amount)
	}
	return g.Increment(uint64(amount))
}

// Merge returns the pointwise maximum of g and other's per-node counts.
func (g *GCounter) Merge(other *GCounter) *GCounter {
	out := NewGCounter(g.nodeID)
	for k, v := range g.counts {
		out.counts[k] = v
	}
	if other == nil {
		return out
	}
	for k, v := range other.counts {
		if v > out.counts[k] {
			out.counts[k] = v
		}
	}
	return out
}

// Counts returns a copy of the per-node contribution map.
func (g *GCounter) Counts() map[string]uint64 {
	out := make(map[string]uint64, len(g.counts))
	for k, v := range g.counts {
		out[k] = v
	}
	return out
}

// GCounterFromCounts rebuilds a GCounter from a serialized count map.
func GCounterFromCounts(nodeID string, counts map[string]uint64) *GCounter {
	out := NewGCounter(nodeID)
	for k, v := range counts {
		out.counts[k] = v
	}
	return out
}

// PNCounter supports both increment and decrement by composing two
// independent G-Counters.
type PNCounter struct {
	positive *GCounter
	negative *GCounter
}

// NewPNCounter creates an empty positive/negative counter pair.
func NewPNCounter(nodeID string) *PNCounter {
	return &PNCounter{positive: NewGCounter(nodeID), negative: NewGCounter(nodeID)}
}

// Value returns positive.Value() - negative.Value().
func (p *PNCounter) Value() int64 {
	return int64(p.positive.Value()) - int64(p.negative.Value())
}

// Increment grows the positive side.
func (p *PNCounter) Increment(amount uint64) error {
	return p.positive.Increment(amount)
}

// Decrement grows the negative side.
func (p *PNCounter) Decrement(amount uint64) error {
	return p.negative.Increment(amount)
}

// Merge independently merges the positive and negative G-Counters.
func (p *PNCounter) Merge(other *PNCounter) *PNCounter {
	if other == nil {
		return &PNCounter{positive: p.positive.Merge(nil), negative: p.negative.Merge(nil)}
	}
	return &PNCounter{
		positive: p.positive.Merge(other.positive),
		negative: p.negative.Merge(other.negative),
	}
}

// Positive and Negative expose the underlying counters, e.g. for
// serialization.
func (p *PNCounter) Positive() *GCounter { return p.positive }
func (p *PNCounter) Negative() *GCounter { return p.negative }
