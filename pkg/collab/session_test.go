package collab

import (
	"testing"

	"github.com/nexops/operator/pkg/shard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddParticipant_AssignsShardAndStartsGossipLazily(t *testing.T) {
	sm := shard.NewManager(3, shard.WithShardCapacity(10))
	s := NewSession("doc-1", 10, DefaultSettings(), sm)

	assert.Empty(t, s.PrimaryShard())
	assert.Nil(t, s.gossip)

	p, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)
	assert.NotEmpty(t, p.ShardID)
	assert.Equal(t, p.ShardID, s.PrimaryShard())
	assert.NotNil(t, s.gossip)
}

func TestAddParticipant_SecondParticipantKeepsPrimaryShard(t *testing.T) {
	sm := shard.NewManager(3, shard.WithShardCapacity(10))
	s := NewSession("doc-1", 10, DefaultSettings(), sm)

	s.AddParticipant("agent-1", "agent", RoleEditor)
	first := s.PrimaryShard()

	s.AddParticipant("agent-2", "agent", RoleEditor)
	assert.Equal(t, first, s.PrimaryShard())
}

func TestAddParticipant_RejectsAtCapacity(t *testing.T) {
	s := NewSession("doc-1", 1, DefaultSettings(), nil)
	_, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)

	_, err = s.AddParticipant("agent-2", "agent", RoleEditor)
	assert.Error(t, err)
}

func TestApplyOperation_ViewerRejected(t *testing.T) {
	s := NewSession("doc-1", 10, DefaultSettings(), nil)
	p, err := s.AddParticipant("agent-1", "agent", RoleViewer)
	require.NoError(t, err)

	_, err = s.ApplyOperation(Operation{Type: "insert", Index: 0, Value: "x"}, p.ID)
	assert.Error(t, err)
}

func TestApplyOperation_UnknownParticipantRejected(t *testing.T) {
	s := NewSession("doc-1", 10, DefaultSettings(), nil)
	_, err := s.ApplyOperation(Operation{Type: "insert", Index: 0, Value: "x"}, "ghost")
	assert.Error(t, err)
}

func TestApplyOperation_InsertsIntoRGAAndLogsOperation(t *testing.T) {
	s := NewSession("doc-1", 10, DefaultSettings(), nil)
	p, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)

	result, err := s.ApplyOperation(Operation{Type: "insert", Index: 0, Value: "hello"}, p.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, result.OperationID)

	snap := s.CreateSnapshot()
	assert.Equal(t, []interface{}{"hello"}, snap.State)
	assert.Equal(t, 1, snap.OperationCount)
}

func TestGetStateDelta_ReturnsOnlyNewerOperations(t *testing.T) {
	s := NewSession("doc-1", 10, DefaultSettings(), nil)
	p, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)

	baseline := s.Clock()
	_, err = s.ApplyOperation(Operation{Type: "insert", Index: 0, Value: "a"}, p.ID)
	require.NoError(t, err)

	delta := s.GetStateDelta(baseline)
	require.Len(t, delta, 1)
	assert.Equal(t, "a", delta[0].Value)

	afterward := s.Clock()
	assert.Empty(t, s.GetStateDelta(afterward))
}

func TestRemoveParticipant_FreesShardSlot(t *testing.T) {
	sm := shard.NewManager(1, shard.WithShardCapacity(10))
	s := NewSession("doc-1", 10, DefaultSettings(), sm)
	p, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)

	ok := s.RemoveParticipant(p.ID)
	assert.True(t, ok)
	assert.Equal(t, 0, sm.TotalParticipants())
}

func TestClose_DisconnectsParticipantsAndStopsGossip(t *testing.T) {
	sm := shard.NewManager(1, shard.WithShardCapacity(10))
	s := NewSession("doc-1", 10, DefaultSettings(), sm)
	p, err := s.AddParticipant("agent-1", "agent", RoleEditor)
	require.NoError(t, err)

	snap := s.Close()
	assert.Equal(t, SessionClosed, s.Status)
	assert.NotZero(t, snap.CreatedAt)

	got, _ := s.GetParticipant(p.ID)
	assert.Equal(t, ParticipantDisconnected, got.Status)
}

func TestManager_JoinAndLeaveSession(t *testing.T) {
	sm := shard.NewManager(2, shard.WithShardCapacity(10))
	m := NewManager(sm)

	session := m.CreateSession("doc-1", 10, DefaultSettings())
	result, err := m.JoinSession(session.ID, "agent-1", "agent", RoleEditor)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ShardID)

	ok := m.LeaveSession(session.ID, result.Participant.ID)
	assert.True(t, ok)
}

func TestManager_Stats(t *testing.T) {
	m := NewManager(nil)
	s1 := m.CreateSession("a", 10, DefaultSettings())
	m.CreateSession("b", 10, DefaultSettings())
	s1.AddParticipant("agent-1", "agent", RoleEditor)

	stats := m.Stats()
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.ActiveSessions)
	assert.Equal(t, 1, stats.TotalParticipants)
}
