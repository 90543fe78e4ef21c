package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolStatus reports connectivity and pool pressure for the Operator's
// single shared *sql.DB: the reconciler, scheduler dispatch loop, and
// every HTTP request handler all draw from it, so a pool running hot
// is visible here before it shows up as request latency.
type PoolStatus struct {
	Status          string        `json:"status"`
	ResponseTime    time.Duration `json:"response_time_ms"`
	OpenConnections int           `json:"open_connections"`
	InUse           int           `json:"in_use"`
	Idle            int           `json:"idle"`
	WaitCount       int64         `json:"wait_count"`
	WaitDuration    time.Duration `json:"wait_duration_ms"`
	MaxOpenConns    int           `json:"max_open_conns"`
}

// degradedWaitThreshold flags the pool as degraded once callers have
// started queuing for a connection at all; for the Operator's access
// pattern (reconciler + dispatcher loops sharing the pool with HTTP
// traffic) any wait count above zero means max_open_conns is already
// undersized for the deployment.
const degradedWaitThreshold = 0

// Ping checks database connectivity and reports pool pressure. A
// reachable database with connections queuing for the pool comes back
// "degraded" rather than "healthy", even though db.PingContext itself
// succeeded.
func Ping(ctx context.Context, db *sql.DB) (*PoolStatus, error) {
	start := time.Now()

	if err := db.PingContext(ctx); err != nil {
		return &PoolStatus{
			Status:       "unhealthy",
			ResponseTime: time.Since(start),
		}, fmt.Errorf("database: ping: %w", err)
	}

	stats := db.Stats()
	status := "healthy"
	if stats.WaitCount > degradedWaitThreshold {
		status = "degraded"
	}

	return &PoolStatus{
		Status:          status,
		ResponseTime:    time.Since(start),
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
		WaitCount:       stats.WaitCount,
		WaitDuration:    stats.WaitDuration,
		MaxOpenConns:    stats.MaxOpenConnections,
	}, nil
}
