package api

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/nexops/operator/pkg/apierr"
	"github.com/nexops/operator/pkg/ledger"
	"github.com/nexops/operator/pkg/scheduler"
)

// listTasksHandler handles GET /tasks, optionally filtered by
// ?status=.
func (s *Server) listTasksHandler(c *echo.Context) error {
	status := c.QueryParam("status")
	tasks := s.scheduler.All()
	if status == "" {
		return c.JSON(http.StatusOK, tasks)
	}

	filtered := make([]scheduler.Task, 0, len(tasks))
	for _, t := range tasks {
		if string(t.Status) == status {
			filtered = append(filtered, t)
		}
	}
	return c.JSON(http.StatusOK, filtered)
}

// createTaskHandler handles POST /tasks. It creates the task, checks
// for the two pre-plan failure conditions spec §7 names by name (no
// agents registered at all, planner error), then hands a successful
// plan to the scheduler for safety validation and queueing.
func (s *Server) createTaskHandler(c *echo.Context) error {
	var req CreateTaskRequest
	if err := c.Bind(&req); err != nil {
		return mapError(apierr.New(apierr.Input, "malformed task request", err))
	}
	if req.Request == "" {
		return mapError(apierr.New(apierr.Input, "request is required", nil))
	}

	task := s.scheduler.Create(scheduler.Request{
		Request:       req.Request,
		TargetAgentID: req.TargetAgentID,
		TargetRole:    req.TargetRole,
		Priority:      req.Priority,
		SkipApproval:  req.SkipApproval,
	})

	if s.ledger != nil {
		if _, err := s.ledger.RecordTaskCreated(uuid.New(), task.ID, req.Request, ledger.Actor{}); err != nil {
			s.logger.Error("failed to record task creation", "task_id", task.ID, "error", err)
		}
	}

	task, err := s.planTask(c, task)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}

// planTask runs the shared post-create pipeline: fail fast if no
// agents are registered or no planner is configured, otherwise plan
// the task and hand the plan to the scheduler. Used by both task
// creation and retry, since a retry is a fresh task that must go
// through planning the same way.
func (s *Server) planTask(c *echo.Context, task scheduler.Task) (scheduler.Task, error) {
	if len(s.registry.All()) == 0 {
		task, _ = s.scheduler.FailTask(task.ID, "No agents registered")
		return task, nil
	}

	if s.planner == nil {
		task, _ = s.scheduler.FailTask(task.ID, "Planning failed: no planner configured")
		return task, nil
	}

	plan, err := s.planner.Plan(c.Request().Context(), task.ID, task.Request)
	if err != nil {
		task, _ = s.scheduler.FailTask(task.ID, fmt.Sprintf("Planning failed: %v", err))
		return task, nil
	}

	task, err = s.scheduler.SetPlan(task.ID, toSchedulerPlan(plan))
	if err != nil {
		return task, mapError(apierr.New(apierr.Execution, "apply plan", err))
	}
	return task, nil
}

func toSchedulerPlan(p Plan) scheduler.Plan {
	commands := make([]scheduler.Command, len(p.Commands))
	for i, cmd := range p.Commands {
		commands[i] = scheduler.Command{
			Dir:              cmd.Dir,
			Run:              cmd.Run,
			Env:              cmd.Env,
			TimeoutSeconds:   cmd.TimeoutSeconds,
			ContinueOnError:  cmd.ContinueOnError,
			ApprovalRequired: cmd.ApprovalRequired,
		}
	}
	return scheduler.Plan{
		TargetAgent:              p.TargetAgent,
		Workspace:                p.Workspace,
		WorkspaceType:            p.WorkspaceType,
		Steps:                    p.Steps,
		Commands:                 commands,
		Reasoning:                p.Reasoning,
		EstimatedDurationSeconds: p.EstimatedDurationSeconds,
		RiskLevel:                scheduler.RiskLevel(p.RiskLevel),
		RequiresApproval:         p.RequiresApproval,
	}
}

// getTaskHandler handles GET /tasks/{id}.
func (s *Server) getTaskHandler(c *echo.Context) error {
	task, ok := s.scheduler.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}
	return c.JSON(http.StatusOK, task)
}

// approveTaskHandler handles POST /tasks/{id}/approve.
func (s *Server) approveTaskHandler(c *echo.Context) error {
	var req ApproveTaskRequest
	if err := c.Bind(&req); err != nil {
		return mapError(apierr.New(apierr.Input, "malformed approval request", err))
	}
	task, err := s.scheduler.ApproveTask(c.Param("id"), req.Approved, req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

// cancelTaskHandler handles POST /tasks/{id}/cancel.
func (s *Server) cancelTaskHandler(c *echo.Context) error {
	var req CancelTaskRequest
	_ = c.Bind(&req)
	task, err := s.scheduler.CancelTask(c.Param("id"), req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, task)
}

// retryTaskHandler handles POST /tasks/{id}/retry: per spec, retrying
// never resumes the original task, it creates a fresh one with the
// same request.
func (s *Server) retryTaskHandler(c *echo.Context) error {
	orig, ok := s.scheduler.Get(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}

	task := s.scheduler.Create(scheduler.Request{
		Request:       orig.Request,
		TargetAgentID: orig.TargetAgentID,
		TargetRole:    orig.TargetRole,
		Priority:      orig.Priority,
		SkipApproval:  !orig.RequiresApproval,
	})

	if s.ledger != nil {
		if _, err := s.ledger.RecordTaskCreated(uuid.New(), task.ID, orig.Request, ledger.Actor{}); err != nil {
			s.logger.Error("failed to record task creation", "task_id", task.ID, "error", err)
		}
	}

	task, err := s.planTask(c, task)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, task)
}
