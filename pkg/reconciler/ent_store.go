package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/nexops/operator/ent/agent"
	"github.com/nexops/operator/ent/workerpool"
	"github.com/nexops/operator/pkg/database"
)

// EntStore is the production Store, backed by the same ent client
// pkg/database constructs for the rest of the Operator.
type EntStore struct {
	db *database.Client
}

// NewEntStore wraps db as a Store.
func NewEntStore(db *database.Client) *EntStore {
	return &EntStore{db: db}
}

func (s *EntStore) ActiveWorkerPools(ctx context.Context) ([]WorkerPoolState, error) {
	rows, err := s.db.WorkerPool.Query().
		Where(workerpool.StatusEQ(workerpool.StatusActive)).
		All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciler: list active worker pools: %w", err)
	}

	pools := make([]WorkerPoolState, 0, len(rows))
	for _, row := range rows {
		packID := ""
		if row.PackID != nil {
			packID = *row.PackID
		}
		pools = append(pools, WorkerPoolState{
			ID:              row.ID,
			Name:            row.Name,
			PackID:          packID,
			QueueName:       row.QueueName,
			MinWorkers:      row.MinWorkers,
			MaxWorkers:      row.MaxWorkers,
			TargetLatencyMs: row.TargetLatencyMs,
			CurrentWorkers:  row.CurrentWorkers,
			QueueDepth:      row.QueueDepth,
			AvgLatencyMs:    row.AvgLatencyMs,
			ErrorRate:       row.ErrorRate,
		})
	}
	return pools, nil
}

func (s *EntStore) SetWorkerCount(ctx context.Context, poolName string, count int) error {
	n, err := s.db.WorkerPool.Update().
		Where(workerpool.NameEQ(poolName)).
		SetCurrentWorkers(count).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: update worker count for %s: %w", poolName, err)
	}
	if n == 0 {
		return fmt.Errorf("reconciler: worker pool %s not found", poolName)
	}
	return nil
}

// UnhealthyAgents aggregates task outcomes per agent over the window
// starting at since. ent's typed query builder has no direct
// analogue for "join agents to a per-agent job aggregate and filter
// on the aggregate" in one call, so this drops to the same raw-SQL
// escape hatch pkg/database uses for its GIN index setup, via the
// client's underlying *sql.DB.
func (s *EntStore) UnhealthyAgents(ctx context.Context, since time.Time, errorRateThreshold float64, minJobs int) ([]AgentHealth, error) {
	const query = `
		WITH agent_stats AS (
			SELECT
				assigned_agent_id AS agent_id,
				count(*) AS total_jobs,
				sum(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) AS failed_jobs,
				avg(EXTRACT(EPOCH FROM (completed_at - started_at)) * 1000) AS avg_latency_ms
			FROM tasks
			WHERE assigned_agent_id IS NOT NULL
			  AND created_at > $1
			  AND status IN ('completed', 'failed')
			GROUP BY assigned_agent_id
		)
		SELECT
			a.id,
			coalesce(a.display_name, a.hostname) AS name,
			a.status,
			coalesce(s.failed_jobs::float / NULLIF(s.total_jobs, 0), 0) AS error_rate,
			coalesce(s.total_jobs, 0) AS job_count,
			coalesce(s.avg_latency_ms, 0) AS avg_latency_ms
		FROM agents a
		LEFT JOIN agent_stats s ON s.agent_id = a.id
		WHERE a.status != 'error'
		  AND coalesce(s.failed_jobs::float / NULLIF(s.total_jobs, 0), 0) > $2
		  AND coalesce(s.total_jobs, 0) >= $3
	`

	rows, err := s.db.DB().QueryContext(ctx, query, since, errorRateThreshold, minJobs)
	if err != nil {
		return nil, fmt.Errorf("reconciler: query agent health: %w", err)
	}
	defer rows.Close()

	var out []AgentHealth
	for rows.Next() {
		var h AgentHealth
		if err := rows.Scan(&h.ID, &h.Name, &h.Status, &h.ErrorRate, &h.JobCount, &h.AvgLatencyMs); err != nil {
			return nil, fmt.Errorf("reconciler: scan agent health row: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *EntStore) MarkAgentError(ctx context.Context, agentID, message string) error {
	// The Agent schema has no free-text error_message column; the
	// reconciler's health-check reason is recorded on the ledger
	// event instead (see RecordAgentError), not duplicated on the row.
	_ = message
	err := s.db.Agent.UpdateOneID(agentID).
		SetStatus(agent.StatusError).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: mark agent %s error: %w", agentID, err)
	}
	return nil
}
