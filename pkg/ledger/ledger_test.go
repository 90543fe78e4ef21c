package ledger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustService(t *testing.T) *Service {
	t.Helper()
	svc, err := New(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestRecord_AssignsIDAndRecordedAt(t *testing.T) {
	svc := mustService(t)

	event, err := svc.Record(EventCreate{
		CorrelationID: uuid.New(),
		Layer:         LayerGovernance,
		Action:        "task:created",
		ResourceType:  "task",
		Decision:      DecisionAllow,
		LedgerLevel:   LevelDecision,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, event.ID)
	assert.False(t, event.RecordedAt.IsZero())
	assert.True(t, event.RecordedAt.Equal(event.OccurredAt) || event.RecordedAt.After(event.OccurredAt))
}

func TestRecord_DefaultsOccurredAtToNow(t *testing.T) {
	svc := mustService(t)
	before := time.Now().UTC()

	event, err := svc.Record(EventCreate{
		CorrelationID: uuid.New(),
		Action:        "task:created",
		ResourceType:  "task",
		Decision:      DecisionAllow,
		LedgerLevel:   LevelDecision,
	})
	require.NoError(t, err)
	assert.False(t, event.OccurredAt.Before(before))
}

// I3: within one correlation_id, events are recorded in append order
// and the in-memory index preserves it.
func TestGetByCorrelation_PreservesAppendOrder(t *testing.T) {
	svc := mustService(t)
	corr := uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.Record(EventCreate{
			CorrelationID: corr,
			SequenceNum:   i,
			Action:        "step",
			ResourceType:  "task",
			Decision:      DecisionAllow,
			LedgerLevel:   LevelDecision,
		})
		require.NoError(t, err)
	}

	events := svc.GetByCorrelation(corr)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, i, e.SequenceNum)
	}
}

func TestRecord_WritesDailyJSONLFile(t *testing.T) {
	dir := t.TempDir()
	svc, err := New(dir, nil)
	require.NoError(t, err)
	defer svc.Close()

	corr := uuid.New()
	_, err = svc.Record(EventCreate{
		CorrelationID: corr,
		Action:        "task:created",
		ResourceType:  "task",
		Decision:      DecisionAllow,
		LedgerLevel:   LevelDecision,
	})
	require.NoError(t, err)

	today := time.Now().UTC().Format("2006-01-02")
	path := filepath.Join(dir, "audit-"+today+".jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(data[:len(data)-1], &decoded))
	assert.Equal(t, corr, decoded.CorrelationID)
}

func TestQuery_FiltersAndPaginates(t *testing.T) {
	svc := mustService(t)

	for i := 0; i < 10; i++ {
		decision := DecisionAllow
		if i%2 == 0 {
			decision = DecisionDeny
		}
		_, err := svc.Record(EventCreate{
			CorrelationID: uuid.New(),
			Action:        "task:created",
			ResourceType:  "task",
			Decision:      decision,
			LedgerLevel:   LevelDecision,
			OccurredAt:    time.Now().UTC().Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	result := svc.Query(Query{Decision: DecisionDeny, Limit: 2})
	assert.Equal(t, 5, result.Total)
	assert.Len(t, result.Events, 2)
	// sorted occurred_at descending
	assert.True(t, result.Events[0].OccurredAt.After(result.Events[1].OccurredAt))
}

func TestQuery_OffsetBeyondTotalReturnsEmpty(t *testing.T) {
	svc := mustService(t)
	_, err := svc.Record(EventCreate{
		CorrelationID: uuid.New(), Action: "x", ResourceType: "task",
		Decision: DecisionAllow, LedgerLevel: LevelDecision,
	})
	require.NoError(t, err)

	result := svc.Query(Query{Offset: 50})
	assert.Empty(t, result.Events)
	assert.Equal(t, 1, result.Total)
}

func TestCountByDecision(t *testing.T) {
	svc := mustService(t)
	for _, d := range []Decision{DecisionAllow, DecisionAllow, DecisionDeny} {
		_, err := svc.Record(EventCreate{
			CorrelationID: uuid.New(), Action: "x", ResourceType: "task",
			Decision: d, LedgerLevel: LevelDecision,
		})
		require.NoError(t, err)
	}
	counts := svc.CountByDecision()
	assert.Equal(t, 2, counts[DecisionAllow])
	assert.Equal(t, 1, counts[DecisionDeny])
}

func TestRecordCommandBlocked_TruncatesLongCommand(t *testing.T) {
	svc := mustService(t)
	longCmd := make([]byte, 1000)
	for i := range longCmd {
		longCmd[i] = 'x'
	}
	event, err := svc.RecordCommandBlocked(uuid.New(), "task-1", string(longCmd), "matched blocklist", Actor{AgentID: "agent-1"})
	require.NoError(t, err)
	assert.Contains(t, event.Metadata["command"], "...(truncated)")
	assert.Equal(t, LevelFull, event.LedgerLevel)
	assert.Equal(t, DecisionDeny, event.Decision)
}
