package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexops/operator/pkg/ledger"
)

// Reconciler periodically compares desired worker-pool state to
// actual queue depth and latency, applies scaling decisions through
// an InfraProvider, and marks unhealthy agents.
type Reconciler struct {
	store  Store
	infra  InfraProvider
	config Config
	ledger *ledger.Service
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New constructs a Reconciler. led may be nil.
func New(store Store, infra InfraProvider, config Config, led *ledger.Service, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:  store,
		infra:  infra,
		config: config,
		ledger: led,
		logger: logger,
	}
}

// Start runs the reconciliation loop until ctx is cancelled or Stop
// is called. A cycle that errors is logged and the loop sleeps for
// the configured interval before the next attempt.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.done = make(chan struct{})
	r.mu.Unlock()

	r.logger.Info("reconciler starting", "interval", r.config.ReconcileInterval)

	defer close(r.done)
	for {
		if err := r.Reconcile(loopCtx); err != nil {
			r.logger.Error("reconciliation cycle failed", "error", err)
		}

		select {
		case <-loopCtx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-time.After(r.config.ReconcileInterval):
		}
	}
}

// Stop signals the loop to exit after its current cycle and blocks
// until it has.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	done := r.done
	r.running = false
	r.mu.Unlock()

	cancel()
	<-done
}

// Reconcile runs one full cycle: list pools, decide and apply scaling,
// then check agent health.
func (r *Reconciler) Reconcile(ctx context.Context) error {
	pools, err := r.store.ActiveWorkerPools(ctx)
	if err != nil {
		return fmt.Errorf("reconciler: list pools: %w", err)
	}

	for _, pool := range pools {
		decision := evaluateScaling(pool, r.config)
		if decision == nil {
			continue
		}

		r.logger.Info("scaling worker pool",
			"pool", decision.PoolName, "from", decision.Current,
			"to", decision.Target, "reason", decision.Reason)

		applied, err := r.infra.SetWorkerCount(ctx, decision.PoolName, decision.Target)
		if err != nil {
			r.logger.Error("infra provider scale call failed", "pool", decision.PoolName, "error", err)
			continue
		}
		if !applied {
			continue
		}
		if err := r.store.SetWorkerCount(ctx, decision.PoolName, decision.Target); err != nil {
			r.logger.Error("persist worker count failed", "pool", decision.PoolName, "error", err)
		}
	}

	return r.checkAgentHealth(ctx)
}

// evaluateScaling applies the scale-up/scale-down thresholds to a
// single pool's observed state. Scale-up takes priority over
// scale-down when both conditions somehow hold at once, matching the
// reference's if/elif chain.
func evaluateScaling(pool WorkerPoolState, cfg Config) *ScaleDecision {
	current := pool.CurrentWorkers
	target := current
	reason := ""

	switch {
	case pool.QueueDepth > cfg.HighQueueThreshold:
		target = min(current+cfg.ScaleStep, pool.MaxWorkers)
		reason = fmt.Sprintf("high queue depth (%d)", pool.QueueDepth)
	case pool.AvgLatencyMs > float64(pool.TargetLatencyMs)*cfg.LatencyThresholdMultiplier:
		target = min(current+cfg.ScaleStep, pool.MaxWorkers)
		reason = fmt.Sprintf("high latency (%.0fms > %dms)", pool.AvgLatencyMs, pool.TargetLatencyMs)
	case pool.QueueDepth < cfg.LowQueueThreshold && current > pool.MinWorkers:
		target = max(current-cfg.ScaleStep, pool.MinWorkers)
		reason = fmt.Sprintf("low queue depth (%d)", pool.QueueDepth)
	}

	if target == current {
		return nil
	}
	return &ScaleDecision{PoolName: pool.Name, Current: current, Target: target, Reason: reason}
}

// checkAgentHealth marks every agent whose error rate over the last
// hour exceeds the configured threshold (with enough job volume to be
// meaningful) as ERROR, and records a ledger event per agent.
func (r *Reconciler) checkAgentHealth(ctx context.Context) error {
	since := time.Now().UTC().Add(-time.Hour)
	unhealthy, err := r.store.UnhealthyAgents(ctx, since, r.config.ErrorRateThreshold, 5)
	if err != nil {
		return fmt.Errorf("reconciler: check agent health: %w", err)
	}

	for _, a := range unhealthy {
		message := fmt.Sprintf("high error rate: %.1f%% over %d jobs", a.ErrorRate*100, a.JobCount)
		r.logger.Warn("marking agent unhealthy", "agent", a.Name, "error_rate", a.ErrorRate, "job_count", a.JobCount)

		if err := r.store.MarkAgentError(ctx, a.ID, message); err != nil {
			r.logger.Error("mark agent error failed", "agent", a.ID, "error", err)
			continue
		}

		if r.ledger != nil {
			if _, err := r.ledger.RecordAgentError(uuid.New(), a.ID, a.ErrorRate, a.JobCount); err != nil {
				r.logger.Error("record agent error event failed", "agent", a.ID, "error", err)
			}
		}
	}
	return nil
}
