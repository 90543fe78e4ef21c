package reconciler

import (
	"context"
	"time"
)

// Store is the persistence boundary the reconciler reads desired
// state from and writes decisions back to. EntStore is the
// production implementation; tests supply a fake.
type Store interface {
	// ActiveWorkerPools returns every pool with status "active",
	// including its current queue_depth/avg_latency_ms/error_rate
	// columns — the Operator persists these as pool fields rather
	// than reading them from a separate queue or metrics service.
	ActiveWorkerPools(ctx context.Context) ([]WorkerPoolState, error)

	// SetWorkerCount persists a pool's new current_workers after the
	// infra provider confirms the change.
	SetWorkerCount(ctx context.Context, poolName string, count int) error

	// UnhealthyAgents returns every active agent whose job outcomes
	// since since exceed errorRateThreshold, restricted to agents
	// with at least minJobs completed or failed tasks in the window.
	UnhealthyAgents(ctx context.Context, since time.Time, errorRateThreshold float64, minJobs int) ([]AgentHealth, error)

	// MarkAgentError transitions an agent to status "error".
	MarkAgentError(ctx context.Context, agentID, message string) error
}

// InfraProvider applies scaling decisions to the underlying compute
// fleet. The production implementation is a gRPC client; a mock
// provider that no-ops is acceptable for local development, matching
// the reference's fallback InfraProvider base class.
type InfraProvider interface {
	GetWorkerCount(ctx context.Context, poolName string) (int, error)
	SetWorkerCount(ctx context.Context, poolName string, count int) (bool, error)
}
