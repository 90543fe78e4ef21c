package gossip

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOperation_IncrementsClock(t *testing.T) {
	p := New("shard-a")
	before := p.Clock().Get("shard-a")

	p.AddOperation("op-1")

	assert.Equal(t, before+1, p.Clock().Get("shard-a"))
}

func TestCreateGossipMessage_IncludesUnseenOperations(t *testing.T) {
	a := New("shard-a")
	a.AddPeer("shard-b")
	a.AddOperation("op-1")

	msg := a.CreateGossipMessage("shard-b")
	require.Len(t, msg.Operations, 1)
	assert.Equal(t, "shard-a", msg.FromShard)
	assert.Equal(t, "shard-b", msg.ToShard)
	assert.NotEmpty(t, msg.Digest)
}

// S4: convergence via push-pull gossip between two shards.
func TestReceiveGossip_ConvergesTwoShards(t *testing.T) {
	a := New("shard-a", WithAntiEntropyInterval(time.Hour))
	a.AddPeer("shard-b")

	var received []Operation
	b := New("shard-b", WithAntiEntropyInterval(time.Hour), WithOnReceive(func(ops []Operation) {
		received = append(received, ops...)
	}))
	b.AddPeer("shard-a")

	a.AddOperation("op-from-a")

	msg := a.CreateGossipMessage("shard-b")
	resp := b.ReceiveGossip(msg)

	require.Len(t, received, 1)
	assert.Equal(t, "op-from-a", received[0].Payload)
	assert.True(t, b.Clock().HappensAfter(a.Clock()) || b.Clock().Compare(a.Clock()).String() == "equal")

	a.ApplyResponse(resp)
	assert.True(t, a.Clock().Compare(b.Clock()).String() == "equal" || !a.Clock().IsConcurrent(b.Clock()))
}

func TestReceiveGossip_InSyncWhenDigestsMatch(t *testing.T) {
	a := New("shard-a")
	b := New("shard-b")
	a.AddPeer("shard-b")
	b.AddPeer("shard-a")

	msg := a.CreateGossipMessage("shard-b")
	resp := b.ReceiveGossip(msg)
	assert.True(t, resp.InSync)
}

func TestReceiveGossip_AntiEntropyReturnsFullState(t *testing.T) {
	a := New("shard-a", WithAntiEntropyInterval(0))
	b := New("shard-b")
	a.AddOperation("op-1")

	msg := a.CreateGossipMessage("shard-b")
	require.True(t, msg.AntiEntropy)

	resp := b.ReceiveGossip(msg)
	assert.NotNil(t, resp.FullState)
}

func TestApplyResponse_AbsorbsMissingOperations(t *testing.T) {
	a := New("shard-a")
	b := New("shard-b")
	b.AddOperation("op-from-b")

	var received []Operation
	a = New("shard-a", WithOnReceive(func(ops []Operation) { received = append(received, ops...) }))

	msg := a.CreateGossipMessage("shard-b")
	resp := b.ReceiveGossip(msg)
	a.ApplyResponse(resp)

	require.Len(t, received, 1)
	assert.Equal(t, "op-from-b", received[0].Payload)
}

func TestSelectPeers_RespectsFanout(t *testing.T) {
	p := New("shard-a", WithFanout(2))
	for _, id := range []string{"b", "c", "d", "e"} {
		p.AddPeer(id)
	}

	peers := p.selectPeers()
	assert.Len(t, peers, 2)
}

func TestSelectPeers_FewerThanFanoutReturnsAll(t *testing.T) {
	p := New("shard-a", WithFanout(5))
	p.AddPeer("b")
	p.AddPeer("c")

	peers := p.selectPeers()
	assert.Len(t, peers, 2)
}

func TestPruneOldOperations_RemovesStaleOps(t *testing.T) {
	p := New("shard-a")
	p.AddOperation("op-1")
	p.pending[0].Timestamp = time.Now().UTC().Add(-time.Hour)
	p.AddOperation("op-2")

	removed := p.PruneOldOperations(time.Minute)
	assert.Equal(t, 1, removed)
	assert.Len(t, p.pending, 1)
}

func TestGossipRound_InvokesOnSendForSelectedPeers(t *testing.T) {
	var sent []string
	p := New("shard-a", WithFanout(2), WithOnSend(func(peerID string, msg Message) {
		sent = append(sent, peerID)
	}))
	p.AddPeer("b")
	p.AddPeer("c")

	p.GossipRound()
	assert.ElementsMatch(t, []string{"b", "c"}, sent)
}

func TestStats_ReportsPeerAndPendingCounts(t *testing.T) {
	p := New("shard-a")
	p.AddPeer("b")
	p.AddOperation("op-1")

	stats := p.Stats()
	assert.Equal(t, "shard-a", stats.ShardID)
	assert.Equal(t, 1, stats.PeerCount)
	assert.Equal(t, 1, stats.PendingOperations)
}
