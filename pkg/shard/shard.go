// Package shard implements the consistent-hash ring and shard
// manager backing 30K-participant collaboration, grounded on the
// reference ShardManager/ConsistentHash pair.
package shard

import (
	"crypto/sha256"
	"fmt"
	"math/big"
	"sort"
	"sync"
)

const ringModulus = 1 << 32

// ConsistentHash is a hash ring built from virtual nodes: each shard
// gets virtualNodes deterministic positions, improving distribution
// over a single point per shard.
type ConsistentHash struct {
	virtualNodes int
	ring         map[uint64]string
	sortedKeys   []uint64
	shards       map[string]struct{}
}

// NewConsistentHash constructs an empty ring. virtualNodes <= 0
// defaults to 150.
func NewConsistentHash(virtualNodes int) *ConsistentHash {
	if virtualNodes <= 0 {
		virtualNodes = 150
	}
	return &ConsistentHash{
		virtualNodes: virtualNodes,
		ring:         make(map[uint64]string),
		shards:       make(map[string]struct{}),
	}
}

func hashKey(key string) uint64 {
	sum := sha256.Sum256([]byte(key))
	n := new(big.Int).SetBytes(sum[:])
	n.Mod(n, big.NewInt(ringModulus))
	return n.Uint64()
}

// AddShard places shardID's virtual nodes on the ring. No-op if
// already present.
func (c *ConsistentHash) AddShard(shardID string) {
	if _, ok := c.shards[shardID]; ok {
		return
	}
	c.shards[shardID] = struct{}{}
	for i := 0; i < c.virtualNodes; i++ {
		h := hashKey(fmt.Sprintf("%s:%d", shardID, i))
		c.ring[h] = shardID
		c.insertSorted(h)
	}
}

func (c *ConsistentHash) insertSorted(h uint64) {
	idx := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i] >= h })
	c.sortedKeys = append(c.sortedKeys, 0)
	copy(c.sortedKeys[idx+1:], c.sortedKeys[idx:])
	c.sortedKeys[idx] = h
}

// RemoveShard takes shardID's virtual nodes off the ring.
func (c *ConsistentHash) RemoveShard(shardID string) {
	if _, ok := c.shards[shardID]; !ok {
		return
	}
	delete(c.shards, shardID)
	for i := 0; i < c.virtualNodes; i++ {
		h := hashKey(fmt.Sprintf("%s:%d", shardID, i))
		if _, ok := c.ring[h]; !ok {
			continue
		}
		delete(c.ring, h)
		c.removeSorted(h)
	}
}

func (c *ConsistentHash) removeSorted(h uint64) {
	idx := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i] >= h })
	if idx < len(c.sortedKeys) && c.sortedKeys[idx] == h {
		c.sortedKeys = append(c.sortedKeys[:idx], c.sortedKeys[idx+1:]...)
	}
}

// GetShard returns the shard owning key, or "" if the ring is empty.
func (c *ConsistentHash) GetShard(key string) string {
	if len(c.sortedKeys) == 0 {
		return ""
	}
	h := hashKey(key)
	idx := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i] > h })
	if idx >= len(c.sortedKeys) {
		idx = 0
	}
	return c.ring[c.sortedKeys[idx]]
}

// GetNShards returns up to n distinct shard ids walking the ring
// forward from key's position, for replication.
func (c *ConsistentHash) GetNShards(key string, n int) []string {
	if len(c.sortedKeys) == 0 || n <= 0 {
		return nil
	}
	h := hashKey(key)
	idx := sort.Search(len(c.sortedKeys), func(i int) bool { return c.sortedKeys[i] > h })

	var result []string
	seen := make(map[string]struct{})
	for len(result) < n && len(seen) < len(c.shards) {
		if idx >= len(c.sortedKeys) {
			idx = 0
		}
		s := c.ring[c.sortedKeys[idx]]
		if _, ok := seen[s]; !ok {
			result = append(result, s)
			seen[s] = struct{}{}
		}
		idx++
	}
	return result
}

// Status is a Shard's health classification. Healthy, degraded and
// overloaded are derived from load; draining is set by DrainShard and
// kept while participants come and go.
type Status string

const (
	StatusHealthy    Status = "healthy"
	StatusDegraded   Status = "degraded"
	StatusOverloaded Status = "overloaded"
	StatusDraining   Status = "draining"
)

// Shard is one partition of the participant population.
type Shard struct {
	ID           string
	Capacity     int
	Participants map[string]struct{}
	PeerShards   map[string]struct{}
	Status       Status
}

func newShard(id string, capacity int) *Shard {
	return &Shard{
		ID:           id,
		Capacity:     capacity,
		Participants: make(map[string]struct{}),
		PeerShards:   make(map[string]struct{}),
		Status:       StatusHealthy,
	}
}

// ParticipantCount reports how many participants currently occupy s.
func (s *Shard) ParticipantCount() int { return len(s.Participants) }

// LoadPercentage reports occupancy as a percentage of capacity.
func (s *Shard) LoadPercentage() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(len(s.Participants)) / float64(s.Capacity) * 100
}

// IsAvailable reports whether s can accept another participant.
func (s *Shard) IsAvailable() bool {
	return (s.Status == StatusHealthy || s.Status == StatusDegraded) && len(s.Participants) < s.Capacity
}

func (s *Shard) addParticipant(id string) bool {
	if !s.IsAvailable() {
		return false
	}
	s.Participants[id] = struct{}{}
	s.updateStatus()
	return true
}

func (s *Shard) removeParticipant(id string) bool {
	if _, ok := s.Participants[id]; !ok {
		return false
	}
	delete(s.Participants, id)
	s.updateStatus()
	return true
}

func (s *Shard) updateStatus() {
	if s.Status == StatusDraining {
		return
	}
	load := s.LoadPercentage()
	switch {
	case load >= 95:
		s.Status = StatusOverloaded
	case load >= 80:
		s.Status = StatusDegraded
	default:
		s.Status = StatusHealthy
	}
}

func (s *Shard) startDraining() { s.Status = StatusDraining }

// Manager owns the shard set and hash ring for one collaboration
// deployment (default 30 shards x 1,000 participants = 30,000
// concurrent capacity).
type Manager struct {
	mu            sync.Mutex
	shards        map[string]*Shard
	order         []string
	ring          *ConsistentHash
	shardCapacity int
	virtualNodes  int
}

// ManagerOption configures a Manager at construction time.
type ManagerOption func(*Manager)

// WithShardCapacity overrides the default capacity of 1,000 per shard.
func WithShardCapacity(n int) ManagerOption {
	return func(m *Manager) { m.shardCapacity = n }
}

// WithVirtualNodes overrides the hash ring's default of 150 virtual
// nodes per shard.
func WithVirtualNodes(n int) ManagerOption {
	return func(m *Manager) { m.virtualNodes = n }
}

// NewManager constructs a Manager and pre-creates shardCount shards
// (default 30), wiring each into the hash ring and linking neighbors
// as peers.
func NewManager(shardCount int, opts ...ManagerOption) *Manager {
	if shardCount <= 0 {
		shardCount = 30
	}
	m := &Manager{
		shards:        make(map[string]*Shard),
		shardCapacity: 1000,
		virtualNodes:  150,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.ring = NewConsistentHash(m.virtualNodes)
	m.initializeShards(shardCount)
	return m
}

func (m *Manager) initializeShards(n int) {
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%03d", i)
		m.shards[id] = newShard(id, m.shardCapacity)
		m.order = append(m.order, id)
		m.ring.AddShard(id)
	}
	for i, id := range m.order {
		prev := m.order[(i-1+len(m.order))%len(m.order)]
		next := m.order[(i+1)%len(m.order)]
		m.shards[id].PeerShards[prev] = struct{}{}
		m.shards[id].PeerShards[next] = struct{}{}
	}
}

// AssignShard places participant onto its primary ring shard, falling
// back to replica candidates and then to the least-loaded available
// shard. Returns "" if every shard is full (I8: never exceeds
// capacity).
func (m *Manager) AssignShard(participant string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id := m.ring.GetShard(participant); id != "" {
		if sh, ok := m.shards[id]; ok && sh.IsAvailable() {
			sh.addParticipant(participant)
			return id
		}
	}
	return m.findAvailableShard(participant)
}

func (m *Manager) findAvailableShard(participant string) string {
	for _, id := range m.ring.GetNShards(participant, 3) {
		if sh, ok := m.shards[id]; ok && sh.IsAvailable() {
			sh.addParticipant(participant)
			return id
		}
	}

	var best *Shard
	for _, id := range m.order {
		sh := m.shards[id]
		if !sh.IsAvailable() {
			continue
		}
		if best == nil || sh.ParticipantCount() < best.ParticipantCount() {
			best = sh
		}
	}
	if best == nil {
		return ""
	}
	best.addParticipant(participant)
	return best.ID
}

// RemoveParticipant removes participant from shardID.
func (m *Manager) RemoveParticipant(participant, shardID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shards[shardID]
	if !ok {
		return false
	}
	return sh.removeParticipant(participant)
}

// Get returns a snapshot of shardID.
func (m *Manager) Get(shardID string) (Shard, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shards[shardID]
	if !ok {
		return Shard{}, false
	}
	return cloneShard(sh), true
}

func cloneShard(s *Shard) Shard {
	participants := make(map[string]struct{}, len(s.Participants))
	for p := range s.Participants {
		participants[p] = struct{}{}
	}
	peers := make(map[string]struct{}, len(s.PeerShards))
	for p := range s.PeerShards {
		peers[p] = struct{}{}
	}
	return Shard{ID: s.ID, Capacity: s.Capacity, Participants: participants, PeerShards: peers, Status: s.Status}
}

// ParticipantShard reports which shard currently holds participant.
func (m *Manager) ParticipantShard(participant string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if _, ok := m.shards[id].Participants[participant]; ok {
			return id, true
		}
	}
	return "", false
}

// AddShard grows the deployment by one shard, linking it to the
// current first and last shard as peers.
func (m *Manager) AddShard() Shard {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := fmt.Sprintf("%03d", len(m.order))
	sh := newShard(id, m.shardCapacity)
	if len(m.order) > 0 {
		sh.PeerShards[m.order[0]] = struct{}{}
		sh.PeerShards[m.order[len(m.order)-1]] = struct{}{}
	}
	m.shards[id] = sh
	m.order = append(m.order, id)
	m.ring.AddShard(id)
	return cloneShard(sh)
}

// DrainShard marks shardID draining (no new participants) and
// returns the participants that need relocating.
func (m *Manager) DrainShard(shardID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	sh, ok := m.shards[shardID]
	if !ok {
		return nil
	}
	sh.startDraining()
	out := make([]string, 0, len(sh.Participants))
	for p := range sh.Participants {
		out = append(out, p)
	}
	return out
}

// Rebalance moves participants from overloaded shards (>80% load) to
// the least-loaded available shards, targeting 70% occupancy on the
// source and picking participants in ascending ID order. Returns
// participant -> new shard id.
func (m *Manager) Rebalance() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	moves := make(map[string]string)
	var overloaded, underloaded []*Shard
	for _, id := range m.order {
		sh := m.shards[id]
		switch {
		case sh.LoadPercentage() > 80:
			overloaded = append(overloaded, sh)
		case sh.IsAvailable():
			underloaded = append(underloaded, sh)
		}
	}
	if len(overloaded) == 0 || len(underloaded) == 0 {
		return moves
	}

	for _, source := range overloaded {
		excess := source.ParticipantCount() - int(float64(source.Capacity)*0.7)
		if excess <= 0 {
			continue
		}
		ids := make([]string, 0, len(source.Participants))
		for p := range source.Participants {
			ids = append(ids, p)
		}
		sort.Strings(ids)
		toMove := ids
		if len(toMove) > excess {
			toMove = ids[:excess]
		}

		for _, p := range toMove {
			target := leastLoaded(underloaded)
			if target == nil || !target.IsAvailable() {
				continue
			}
			source.removeParticipant(p)
			target.addParticipant(p)
			moves[p] = target.ID
		}
	}
	return moves
}

func leastLoaded(shards []*Shard) *Shard {
	var best *Shard
	for _, sh := range shards {
		if best == nil || sh.ParticipantCount() < best.ParticipantCount() {
			best = sh
		}
	}
	return best
}

// TotalParticipants sums participants across every shard.
func (m *Manager) TotalParticipants() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, sh := range m.shards {
		total += sh.ParticipantCount()
	}
	return total
}

// TotalCapacity sums capacity across every shard.
func (m *Manager) TotalCapacity() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, sh := range m.shards {
		total += sh.Capacity
	}
	return total
}

// HealthyShardCount counts shards currently in StatusHealthy.
func (m *Manager) HealthyShardCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sh := range m.shards {
		if sh.Status == StatusHealthy {
			n++
		}
	}
	return n
}
