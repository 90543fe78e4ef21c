package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nexops/operator/pkg/ledger"
	"github.com/nexops/operator/pkg/registry"
	"github.com/nexops/operator/pkg/safety"
)

// Scheduler owns the task table, the priority queue, and dispatch to
// the agent registry. The task map and queue are guarded by a single
// mutex; session sends happen after it is released, per §4's
// shared-resource policy.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*Task
	queue   []string          // task IDs, priority order
	running map[string]string // agent_id -> task_id

	listeners []Listener

	registry *registry.Registry
	safety   *safety.Validator
	ledger   *ledger.Service
	logger   *slog.Logger
}

// New constructs a Scheduler. reg and val must not be nil; ledger may
// be nil to disable audit emission.
func New(reg *registry.Registry, val *safety.Validator, led *ledger.Service, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		tasks:    make(map[string]*Task),
		running:  make(map[string]string),
		registry: reg,
		safety:   val,
		ledger:   led,
		logger:   logger,
	}
}

// AddListener registers a callback invoked (synchronously, outside
// the scheduler's mutex) after every task state transition.
func (s *Scheduler) AddListener(l Listener) {
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

func (s *Scheduler) notify(task Task) {
	s.mu.Lock()
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(task)
	}
}

func newTaskID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// Create starts a new task in PENDING.
func (s *Scheduler) Create(req Request) Task {
	task := &Task{
		ID:               newTaskID(),
		Status:           StatusPending,
		Request:          req.Request,
		TargetAgentID:    req.TargetAgentID,
		TargetRole:       req.TargetRole,
		Priority:         req.Priority,
		RequiresApproval: !req.SkipApproval,
		CreatedAt:        time.Now().UTC(),
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	s.logger.Info("task created", "task_id", task.ID)
	s.notify(*task)
	return *task
}

// SetPlan attaches a plan to a task, safety-validates every command,
// and transitions the task to FAILED (blocked), AWAITING_APPROVAL, or
// QUEUED.
func (s *Scheduler) SetPlan(taskID string, plan Plan) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s not found", taskID)
	}

	task.Plan = &plan
	now := time.Now().UTC()
	task.PlannedAt = &now

	commands := make([]string, len(plan.Commands))
	for i, c := range plan.Commands {
		commands[i] = c.Run
	}
	allValid, results := s.safety.ValidateCommands(commands)

	switch {
	case !allValid:
		var reasons []string
		for _, r := range safety.Blocked(results) {
			reasons = append(reasons, r.Reason)
		}
		task.Status = StatusFailed
		task.Error = fmt.Sprintf("blocked commands: %s", strings.Join(reasons, "; "))
		s.logger.Warn("task blocked by safety validator", "task_id", taskID, "blocked", len(reasons))
	case task.RequiresApproval || plan.RequiresApproval || safety.ShouldRequireApproval(results):
		task.Status = StatusAwaitingApproval
		task.RequiresApproval = true
	default:
		task.Status = StatusQueued
		s.enqueue(task)
	}
	out := *task
	s.mu.Unlock()

	if out.Status == StatusFailed {
		s.emitSafetyBlock(out)
	}
	s.notify(out)
	return out, nil
}

// enqueue inserts a task into the priority queue: higher priority
// first, ties broken by insertion order. Caller must hold s.mu.
func (s *Scheduler) enqueue(task *Task) {
	insertAt := len(s.queue)
	for i, queuedID := range s.queue {
		queued, ok := s.tasks[queuedID]
		if ok && queued.Priority < task.Priority {
			insertAt = i
			break
		}
	}
	s.queue = append(s.queue, "")
	copy(s.queue[insertAt+1:], s.queue[insertAt:])
	s.queue[insertAt] = task.ID
	s.logger.Info("task queued", "task_id", task.ID, "position", insertAt)
}

// ApproveTask resolves a task waiting in AWAITING_APPROVAL.
func (s *Scheduler) ApproveTask(taskID string, approved bool, reason string) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s not found", taskID)
	}
	if task.Status != StatusAwaitingApproval {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s is not awaiting approval", taskID)
	}

	now := time.Now().UTC()
	if approved {
		task.Status = StatusQueued
		task.ApprovedAt = &now
		s.enqueue(task)
	} else {
		task.Status = StatusCancelled
		if reason == "" {
			reason = "rejected by user"
		}
		task.Error = reason
		task.CompletedAt = &now
	}
	out := *task
	s.mu.Unlock()

	s.notify(out)
	return out, nil
}

// DispatchNext scans the queue head-to-tail and assigns the first
// task whose target can be satisfied by an available agent. Returns
// the zero Task and false if nothing could be dispatched.
func (s *Scheduler) DispatchNext(ctx context.Context) (Task, bool) {
	s.mu.Lock()
	var dispatched *Task
	var agentID string

	for _, taskID := range s.queue {
		task, ok := s.tasks[taskID]
		if !ok || task.Plan == nil {
			continue
		}

		target := task.Plan.TargetAgent
		if target == "" {
			target = task.TargetAgentID
		}

		if target != "" {
			agent, ok := s.registry.Get(target)
			if ok && agent.IsAvailable() {
				dispatched, agentID = task, target
				break
			}
			continue
		}

		available := s.registry.Available()
		if task.TargetRole != "" {
			filtered := available[:0:0]
			for _, a := range available {
				if a.HasRole(task.TargetRole) {
					filtered = append(filtered, a)
				}
			}
			available = filtered
		}
		if len(available) > 0 {
			dispatched, agentID = task, available[0].ID
			break
		}
	}

	if dispatched == nil {
		s.mu.Unlock()
		return Task{}, false
	}

	s.removeFromQueue(dispatched.ID)
	now := time.Now().UTC()
	dispatched.Status = StatusRunning
	dispatched.AssignedAgentID = agentID
	dispatched.StartedAt = &now
	s.running[agentID] = dispatched.ID
	out := *dispatched
	s.mu.Unlock()

	s.logger.Info("task dispatched", "task_id", out.ID, "agent_id", agentID)

	if err := s.registry.Send(ctx, agentID, map[string]interface{}{
		"type": "execute_task",
		"payload": map[string]interface{}{
			"task_id": out.ID,
			"plan":    out.Plan,
		},
	}); err != nil {
		s.logger.Error("dispatch send failed, failing task", "task_id", out.ID, "agent_id", agentID, "error", err)
		failed, _ := s.CompleteTask(out.ID, false, -1, "", fmt.Sprintf("agent unreachable: %v", err))
		return failed, true
	}

	s.notify(out)
	return out, true
}

// removeFromQueue deletes taskID from the queue slice. Caller must
// hold s.mu.
func (s *Scheduler) removeFromQueue(taskID string) {
	for i, id := range s.queue {
		if id == taskID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

// CompleteTask moves a task to COMPLETED or FAILED and frees its
// agent slot.
func (s *Scheduler) CompleteTask(taskID string, success bool, exitCode int, output, errText string) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s not found", taskID)
	}

	if success {
		task.Status = StatusCompleted
	} else {
		task.Status = StatusFailed
	}
	task.ExitCode = exitCode
	task.Output = output
	task.Error = errText
	now := time.Now().UTC()
	task.CompletedAt = &now

	if task.AssignedAgentID != "" {
		if s.running[task.AssignedAgentID] == taskID {
			delete(s.running, task.AssignedAgentID)
		}
	}
	out := *task
	s.mu.Unlock()

	s.logger.Info("task completed", "task_id", taskID, "success", success, "exit_code", exitCode)
	s.notify(out)
	return out, nil
}

// CancelTask cancels a task from any non-terminal state.
func (s *Scheduler) CancelTask(taskID string, reason string) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s not found", taskID)
	}
	if task.Status.isTerminal() {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s already finished", taskID)
	}

	s.removeFromQueue(taskID)
	task.Status = StatusCancelled
	if reason == "" {
		reason = "cancelled by user"
	}
	task.Error = reason
	now := time.Now().UTC()
	task.CompletedAt = &now

	if task.AssignedAgentID != "" && s.running[task.AssignedAgentID] == taskID {
		delete(s.running, task.AssignedAgentID)
	}
	out := *task
	s.mu.Unlock()

	s.logger.Info("task cancelled", "task_id", taskID, "reason", reason)
	s.notify(out)
	return out, nil
}

// FailTask transitions a task from any non-terminal state to FAILED,
// for failures originating outside the plan/command path — e.g. a
// planner error before a Plan ever exists.
func (s *Scheduler) FailTask(taskID string, reason string) (Task, error) {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s not found", taskID)
	}
	if task.Status.isTerminal() {
		s.mu.Unlock()
		return Task{}, fmt.Errorf("scheduler: task %s already finished", taskID)
	}

	s.removeFromQueue(taskID)
	task.Status = StatusFailed
	task.Error = reason
	now := time.Now().UTC()
	task.CompletedAt = &now

	if task.AssignedAgentID != "" && s.running[task.AssignedAgentID] == taskID {
		delete(s.running, task.AssignedAgentID)
	}
	out := *task
	s.mu.Unlock()

	s.logger.Info("task failed", "task_id", taskID, "reason", reason)
	s.notify(out)
	return out, nil
}

// Get returns a single task by id.
func (s *Scheduler) Get(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// All returns every task.
func (s *Scheduler) All() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// Queued returns every task currently in the queue, in queue order.
func (s *Scheduler) Queued() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.queue))
	for _, id := range s.queue {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// Running returns every task currently dispatched to an agent.
func (s *Scheduler) Running() []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Task, 0, len(s.running))
	for _, id := range s.running {
		if t, ok := s.tasks[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

// AgentTask returns the task currently running on agentID, if any.
func (s *Scheduler) AgentTask(agentID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.running[agentID]
	if !ok {
		return Task{}, false
	}
	task, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

func (s *Scheduler) emitSafetyBlock(task Task) {
	if s.ledger == nil {
		return
	}
	var command string
	if task.Plan != nil && len(task.Plan.Commands) > 0 {
		command = task.Plan.Commands[0].Run
	}
	if _, err := s.ledger.RecordCommandBlocked(uuid.New(), task.ID, command, task.Error, ledger.Actor{}); err != nil {
		s.logger.Error("failed to record safety block event", "task_id", task.ID, "error", err)
	}
}
