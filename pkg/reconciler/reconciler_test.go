package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	pools     []WorkerPoolState
	unhealthy []AgentHealth

	setCounts map[string]int
	markedErr map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		setCounts: make(map[string]int),
		markedErr: make(map[string]string),
	}
}

func (f *fakeStore) ActiveWorkerPools(ctx context.Context) ([]WorkerPoolState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]WorkerPoolState(nil), f.pools...), nil
}

func (f *fakeStore) SetWorkerCount(ctx context.Context, poolName string, count int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCounts[poolName] = count
	return nil
}

func (f *fakeStore) UnhealthyAgents(ctx context.Context, since time.Time, threshold float64, minJobs int) ([]AgentHealth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]AgentHealth(nil), f.unhealthy...), nil
}

func (f *fakeStore) MarkAgentError(ctx context.Context, agentID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedErr[agentID] = message
	return nil
}

type fakeInfra struct {
	mu      sync.Mutex
	applied map[string]int
	fail    bool
}

func newFakeInfra() *fakeInfra {
	return &fakeInfra{applied: make(map[string]int)}
}

func (f *fakeInfra) GetWorkerCount(ctx context.Context, poolName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applied[poolName], nil
}

func (f *fakeInfra) SetWorkerCount(ctx context.Context, poolName string, count int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return false, nil
	}
	f.applied[poolName] = count
	return true, nil
}

// S6: reconciler scale-up.
func TestEvaluateScaling_ScalesUpOnHighQueueDepth(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 1, QueueDepth: 250, TargetLatencyMs: 1000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	require.NotNil(t, decision)
	assert.Equal(t, 1, decision.Current)
	assert.Equal(t, 2, decision.Target)
}

func TestEvaluateScaling_CapsAtMaxWorkers(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 2,
		CurrentWorkers: 2, QueueDepth: 250, TargetLatencyMs: 1000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	assert.Nil(t, decision)
}

func TestEvaluateScaling_ScalesUpOnHighLatency(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 1, QueueDepth: 0, TargetLatencyMs: 1000, AvgLatencyMs: 2000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	require.NotNil(t, decision)
	assert.Equal(t, 2, decision.Target)
}

// S6 continued: a later cycle with low queue depth scales back down.
func TestEvaluateScaling_ScalesDownOnLowQueueDepth(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 2, QueueDepth: 3, TargetLatencyMs: 1000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	require.NotNil(t, decision)
	assert.Equal(t, 1, decision.Target)
}

func TestEvaluateScaling_NeverScalesBelowMinWorkers(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 1, QueueDepth: 0, TargetLatencyMs: 1000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	assert.Nil(t, decision)
}

func TestEvaluateScaling_NoChangeIsNoop(t *testing.T) {
	pool := WorkerPoolState{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 2, QueueDepth: 50, TargetLatencyMs: 1000,
	}
	decision := evaluateScaling(pool, DefaultConfig())
	assert.Nil(t, decision)
}

func TestReconcile_AppliesAndPersistsScaleUpDecision(t *testing.T) {
	store := newFakeStore()
	store.pools = []WorkerPoolState{{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 1, QueueDepth: 250, TargetLatencyMs: 1000,
	}}
	infra := newFakeInfra()
	r := New(store, infra, DefaultConfig(), nil, nil)

	err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, infra.applied["default"])
	assert.Equal(t, 2, store.setCounts["default"])
}

func TestReconcile_DoesNotPersistWhenInfraCallFails(t *testing.T) {
	store := newFakeStore()
	store.pools = []WorkerPoolState{{
		Name: "default", MinWorkers: 1, MaxWorkers: 5,
		CurrentWorkers: 1, QueueDepth: 250, TargetLatencyMs: 1000,
	}}
	infra := newFakeInfra()
	infra.fail = true
	r := New(store, infra, DefaultConfig(), nil, nil)

	err := r.Reconcile(context.Background())
	require.NoError(t, err)

	_, persisted := store.setCounts["default"]
	assert.False(t, persisted)
}

func TestReconcile_MarksUnhealthyAgents(t *testing.T) {
	store := newFakeStore()
	store.unhealthy = []AgentHealth{
		{ID: "agent-1", Name: "worker-1", ErrorRate: 0.4, JobCount: 10},
	}
	infra := newFakeInfra()
	r := New(store, infra, DefaultConfig(), nil, nil)

	err := r.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Contains(t, store.markedErr, "agent-1")
}

func TestStartStop_RunsAtLeastOneCycleThenStopsCleanly(t *testing.T) {
	store := newFakeStore()
	infra := newFakeInfra()
	cfg := DefaultConfig()
	cfg.ReconcileInterval = time.Millisecond
	r := New(store, infra, cfg, nil, nil)

	done := make(chan struct{})
	go func() {
		r.Start(context.Background())
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	r.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop in time")
	}
}
