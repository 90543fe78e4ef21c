package api

import "context"

// Planner is the external, pluggable collaborator that turns a task's
// natural-language request into a scheduler.Plan. The API layer calls
// it synchronously from the task-creation handler; the scheduler
// itself never talks to a planner directly.
type Planner interface {
	Plan(ctx context.Context, taskID, request string) (Plan, error)
}

// Plan mirrors scheduler.Plan's JSON shape so this package doesn't
// force every Planner implementation to import pkg/scheduler just to
// build a response; SetPlan on the scheduler is the single place the
// two are reconciled.
type Plan struct {
	TargetAgent              string        `json:"target_agent,omitempty"`
	Workspace                string        `json:"workspace"`
	WorkspaceType            string        `json:"workspace_type"`
	Steps                    []string      `json:"steps"`
	Commands                 []PlanCommand `json:"commands"`
	Reasoning                string        `json:"reasoning,omitempty"`
	EstimatedDurationSeconds int           `json:"estimated_duration_seconds,omitempty"`
	RiskLevel                string        `json:"risk_level"`
	RequiresApproval         bool          `json:"requires_approval"`
}

// PlanCommand mirrors scheduler.Command.
type PlanCommand struct {
	Dir              string            `json:"dir"`
	Run              string            `json:"run"`
	Env              map[string]string `json:"env,omitempty"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	ContinueOnError  bool              `json:"continue_on_error"`
	ApprovalRequired bool              `json:"approval_required"`
}
