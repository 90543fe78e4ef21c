// Package reconciler compares desired worker-pool state against
// actual queue depth and latency, scales pools through an infra
// provider, and marks unhealthy agents, grounded on the reference
// operator's Reconciler loop.
package reconciler

import "time"

// WorkerPoolState is one pool's desired and observed state for a
// reconciliation cycle.
type WorkerPoolState struct {
	ID              string
	Name            string
	PackID          string
	QueueName       string
	MinWorkers      int
	MaxWorkers      int
	TargetLatencyMs int
	CurrentWorkers  int
	QueueDepth      int
	AvgLatencyMs    float64
	ErrorRate       float64
}

// AgentHealth is one agent's recent job outcomes, aggregated over
// the lookback window checkAgentHealth uses.
type AgentHealth struct {
	ID           string
	Name         string
	Status       string
	ErrorRate    float64
	JobCount     int
	AvgLatencyMs float64
}

// ScaleDecision is the outcome of evaluateScaling for one pool, nil
// when no change is warranted.
type ScaleDecision struct {
	PoolName string
	Current  int
	Target   int
	Reason   string
}

// Config tunes the reconciliation loop. Zero value is invalid; use
// DefaultConfig.
type Config struct {
	ReconcileInterval          time.Duration `yaml:"reconcile_interval"`
	ScaleStep                  int           `yaml:"scale_step"`
	HighQueueThreshold         int           `yaml:"high_queue_threshold"`
	LowQueueThreshold          int           `yaml:"low_queue_threshold"`
	ErrorRateThreshold         float64       `yaml:"error_rate_threshold"`
	LatencyThresholdMultiplier float64       `yaml:"latency_threshold_multiplier"`
}

// DefaultConfig mirrors the reference OperatorConfig defaults.
func DefaultConfig() Config {
	return Config{
		ReconcileInterval:          10 * time.Second,
		ScaleStep:                  1,
		HighQueueThreshold:         100,
		LowQueueThreshold:          5,
		ErrorRateThreshold:         0.1,
		LatencyThresholdMultiplier: 1.5,
	}
}
