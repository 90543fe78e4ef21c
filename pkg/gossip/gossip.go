// Package gossip implements push-pull anti-entropy replication
// between collaboration shards, grounded on the reference
// GossipProtocol's message/response/receive-gossip algorithm.
package gossip

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexops/operator/pkg/vectorclock"
)

// Operation is one unit of replicated state: a CRDT op plus the
// clock that causally tags it.
type Operation struct {
	ShardID   string
	Clock     *vectorclock.Clock
	Payload   interface{}
	Timestamp time.Time
}

// Message carries one shard's outgoing gossip payload to a peer.
type Message struct {
	ID          string
	FromShard   string
	ToShard     string
	Clock       *vectorclock.Clock
	Digest      string
	Operations  []Operation
	AntiEntropy bool
	Timestamp   time.Time
}

// Response answers a received Message.
type Response struct {
	FromShard         string
	Clock             *vectorclock.Clock
	MissingOperations []Operation
	InSync            bool
	FullState         []Operation
}

// SendFunc delivers an outgoing message to a peer; the network
// transport is the caller's responsibility.
type SendFunc func(peerID string, msg Message)

// ReceiveFunc is notified of newly-applied remote operations.
type ReceiveFunc func([]Operation)

// Protocol runs one shard's side of push-pull gossip.
type Protocol struct {
	mu sync.Mutex

	shardID     string
	peers       map[string]struct{}
	clock       *vectorclock.Clock
	pending     []Operation
	knownClocks map[string]*vectorclock.Clock

	intervalMs          int
	fanout              int
	maxOperationsPerMsg int
	antiEntropyInterval time.Duration
	lastAntiEntropy     time.Time

	onReceive ReceiveFunc
	onSend    SendFunc

	rng *rand.Rand

	cancel context.CancelFunc
}

// Option configures a Protocol at construction time.
type Option func(*Protocol)

func WithIntervalMs(ms int) Option            { return func(p *Protocol) { p.intervalMs = ms } }
func WithFanout(n int) Option                 { return func(p *Protocol) { p.fanout = n } }
func WithMaxOperationsPerMsg(n int) Option     { return func(p *Protocol) { p.maxOperationsPerMsg = n } }
func WithAntiEntropyInterval(d time.Duration) Option {
	return func(p *Protocol) { p.antiEntropyInterval = d }
}
func WithOnReceive(f ReceiveFunc) Option { return func(p *Protocol) { p.onReceive = f } }
func WithOnSend(f SendFunc) Option       { return func(p *Protocol) { p.onSend = f } }

// New constructs a Protocol for shardID. Defaults: 100ms interval,
// fanout 2, 100 operations per message, 60s anti-entropy interval.
func New(shardID string, opts ...Option) *Protocol {
	p := &Protocol{
		shardID:             shardID,
		peers:               make(map[string]struct{}),
		clock:               vectorclock.New(),
		knownClocks:         make(map[string]*vectorclock.Clock),
		intervalMs:          100,
		fanout:              2,
		maxOperationsPerMsg: 100,
		antiEntropyInterval: 60 * time.Second,
		rng:                 rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddPeer registers peerID as a gossip target.
func (p *Protocol) AddPeer(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[peerID] = struct{}{}
	if _, ok := p.knownClocks[peerID]; !ok {
		p.knownClocks[peerID] = vectorclock.New()
	}
}

// RemovePeer drops peerID from the gossip set.
func (p *Protocol) RemovePeer(peerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.peers, peerID)
	delete(p.knownClocks, peerID)
}

// AddOperation increments the local clock and queues payload for
// gossip, tagging it with the new clock.
func (p *Protocol) AddOperation(payload interface{}) Operation {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = p.clock.Increment(p.shardID)
	op := Operation{ShardID: p.shardID, Clock: p.clock.Clone(), Payload: payload, Timestamp: time.Now().UTC()}
	p.pending = append(p.pending, op)
	return op
}

func (p *Protocol) selectPeers() []string {
	all := make([]string, 0, len(p.peers))
	for id := range p.peers {
		all = append(all, id)
	}
	if len(all) <= p.fanout {
		return all
	}
	p.rng.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	return all[:p.fanout]
}

func (p *Protocol) computeDigest() string {
	sum := sha256.Sum256([]byte(p.clock.Digest()))
	return hex.EncodeToString(sum[:])[:16]
}

// CreateGossipMessage builds the outgoing message for toShard: every
// pending operation causally after what toShard is known to have,
// capped to maxOperationsPerMsg, plus an anti-entropy flag when the
// interval has elapsed. Caller must hold no lock; this method takes
// its own.
func (p *Protocol) CreateGossipMessage(toShard string) Message {
	p.mu.Lock()
	defer p.mu.Unlock()

	peerClock, ok := p.knownClocks[toShard]
	if !ok {
		peerClock = vectorclock.New()
	}

	tail := p.pending
	if len(tail) > p.maxOperationsPerMsg {
		tail = tail[len(tail)-p.maxOperationsPerMsg:]
	}

	var toSend []Operation
	for _, op := range tail {
		if op.Clock.HappensAfter(peerClock) {
			toSend = append(toSend, op)
		}
	}

	needAntiEntropy := time.Since(p.lastAntiEntropy) > p.antiEntropyInterval

	return Message{
		ID:          uuid.New().String(),
		FromShard:   p.shardID,
		ToShard:     toShard,
		Clock:       p.clock.Clone(),
		Digest:      p.computeDigest(),
		Operations:  toSend,
		AntiEntropy: needAntiEntropy,
		Timestamp:   time.Now().UTC(),
	}
}

// ReceiveGossip applies an incoming message: records the sender's
// clock, gathers operations the sender is missing, absorbs new
// operations the sender sent that are causally new to us, and merges
// clocks.
func (p *Protocol) ReceiveGossip(msg Message) Response {
	p.mu.Lock()

	p.knownClocks[msg.FromShard] = msg.Clock.Clone()

	var missing []Operation
	for _, op := range p.pending {
		if op.Clock.HappensAfter(msg.Clock) {
			missing = append(missing, op)
		}
	}
	if len(missing) > p.maxOperationsPerMsg {
		missing = missing[:p.maxOperationsPerMsg]
	}

	var newOps []Operation
	for _, op := range msg.Operations {
		if op.Clock.HappensAfter(p.clock) {
			newOps = append(newOps, op)
			p.pending = append(p.pending, op)
		}
	}

	p.clock = p.clock.Merge(msg.Clock)
	inSync := p.computeDigest() == msg.Digest

	var fullState []Operation
	if msg.AntiEntropy {
		p.lastAntiEntropy = time.Now().UTC()
		fullState = lastN(p.pending, 1000)
	}

	onReceive := p.onReceive
	clock := p.clock.Clone()
	p.mu.Unlock()

	if len(newOps) > 0 && onReceive != nil {
		onReceive(newOps)
	}

	return Response{
		FromShard:         p.shardID,
		Clock:             clock,
		MissingOperations: missing,
		InSync:            inSync,
		FullState:         fullState,
	}
}

// ApplyResponse ingests a peer's response: absorbs operations we were
// missing, merges clocks, and folds in any anti-entropy snapshot.
func (p *Protocol) ApplyResponse(resp Response) {
	p.mu.Lock()

	p.knownClocks[resp.FromShard] = resp.Clock.Clone()

	var absorbed []Operation
	for _, op := range resp.MissingOperations {
		if op.Clock.HappensAfter(p.clock) {
			p.pending = append(p.pending, op)
			absorbed = append(absorbed, op)
		}
	}

	p.clock = p.clock.Merge(resp.Clock)

	if resp.FullState != nil {
		seen := make(map[string]struct{}, len(p.pending))
		for _, op := range p.pending {
			seen[opKey(op)] = struct{}{}
		}
		for _, op := range resp.FullState {
			if _, ok := seen[opKey(op)]; !ok {
				p.pending = append(p.pending, op)
				seen[opKey(op)] = struct{}{}
			}
		}
	}

	onReceive := p.onReceive
	p.mu.Unlock()

	if len(absorbed) > 0 && onReceive != nil {
		onReceive(absorbed)
	}
}

func opKey(op Operation) string {
	return op.ShardID + "@" + op.Clock.Digest()
}

func lastN(ops []Operation, n int) []Operation {
	if len(ops) <= n {
		out := make([]Operation, len(ops))
		copy(out, ops)
		return out
	}
	out := make([]Operation, n)
	copy(out, ops[len(ops)-n:])
	return out
}

// GossipRound picks fanout peers and hands each an outgoing message
// to onSend.
func (p *Protocol) GossipRound() {
	p.mu.Lock()
	peers := p.selectPeers()
	onSend := p.onSend
	p.mu.Unlock()

	if onSend == nil {
		return
	}
	for _, peerID := range peers {
		onSend(peerID, p.CreateGossipMessage(peerID))
	}
}

// Run drives gossip rounds on a ticker until ctx is cancelled.
func (p *Protocol) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	ticker := time.NewTicker(time.Duration(p.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.GossipRound()
		}
	}
}

// Stop cancels a running Run loop. No-op if Run was never started.
func (p *Protocol) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// PruneOldOperations drops pending operations older than maxAge,
// returning the number removed.
func (p *Protocol) PruneOldOperations(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	before := len(p.pending)

	kept := p.pending[:0:0]
	for _, op := range p.pending {
		if op.Timestamp.After(cutoff) {
			kept = append(kept, op)
		}
	}
	p.pending = kept
	return before - len(p.pending)
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	ShardID           string
	PeerCount         int
	PendingOperations int
	Clock             map[string]uint64
}

// Stats returns current protocol statistics.
func (p *Protocol) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		ShardID:           p.shardID,
		PeerCount:         len(p.peers),
		PendingOperations: len(p.pending),
		Clock:             p.clock.ToMap(),
	}
}

// Clock returns a snapshot of the protocol's current vector clock.
func (p *Protocol) Clock() *vectorclock.Clock {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock.Clone()
}
