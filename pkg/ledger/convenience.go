package ledger

import "github.com/google/uuid"

const truncateAt = 500

// truncate shortens s for inclusion in ledger metadata; long command
// output and error text would otherwise dominate the audit file.
func truncate(s string) string {
	if len(s) <= truncateAt {
		return s
	}
	return s[:truncateAt] + "...(truncated)"
}

// RecordTaskCreated logs a task's creation at the governance layer.
func (s *Service) RecordTaskCreated(correlationID uuid.UUID, taskID, requestText string, actor Actor) (Event, error) {
	return s.Record(EventCreate{
		CorrelationID: correlationID,
		Layer:         LayerGovernance,
		Actor:         actor,
		Action:        "task:created",
		ResourceType:  "task",
		ResourceID:    taskID,
		Decision:      DecisionAllow,
		LedgerLevel:   LevelDecision,
		Metadata: map[string]interface{}{
			"request": truncate(requestText),
		},
	})
}

// RecordCommandBlocked logs a command rejected by the safety
// validator; this is always ledger_level=full since it is a terminal
// safety decision.
func (s *Service) RecordCommandBlocked(correlationID uuid.UUID, taskID, command, reason string, actor Actor) (Event, error) {
	return s.Record(EventCreate{
		CorrelationID: correlationID,
		Layer:         LayerGovernance,
		Actor:         actor,
		Action:        "command:blocked",
		ResourceType:  "task",
		ResourceID:    taskID,
		Decision:      DecisionDeny,
		LedgerLevel:   LevelFull,
		Metadata: map[string]interface{}{
			"command": truncate(command),
			"reason":  reason,
		},
	})
}

// RecordPolicyDecision logs the outcome of a policy evaluation against
// a governed action.
func (s *Service) RecordPolicyDecision(correlationID uuid.UUID, host, service, policyScope, action, resourceType, resourceID string, decision Decision, policyID, policyVersion string, level Level, actor Actor) (Event, error) {
	return s.Record(EventCreate{
		CorrelationID: correlationID,
		Layer:         LayerGovernance,
		Host:          host,
		Service:       service,
		PolicyScope:   policyScope,
		Actor:         actor,
		Action:        action,
		ResourceType:  resourceType,
		ResourceID:    resourceID,
		Decision:      decision,
		PolicyID:      policyID,
		PolicyVersion: policyVersion,
		LedgerLevel:   level,
	})
}

// RecordAgentError logs an agent being marked ERROR by the
// reconciler's per-agent error-rate check.
func (s *Service) RecordAgentError(correlationID uuid.UUID, agentID string, errorRate float64, jobCount int) (Event, error) {
	return s.Record(EventCreate{
		CorrelationID: correlationID,
		Layer:         LayerInfra,
		Actor:         Actor{AgentID: agentID},
		Action:        "agent:marked_error",
		ResourceType:  "agent",
		ResourceID:    agentID,
		Decision:      DecisionDeny,
		LedgerLevel:   LevelAction,
		Metadata: map[string]interface{}{
			"error_rate": errorRate,
			"job_count":  jobCount,
		},
	})
}

// RecordTaskCompleted logs a task's terminal outcome.
func (s *Service) RecordTaskCompleted(correlationID uuid.UUID, taskID string, success bool, exitCode int, output, errText string, actor Actor) (Event, error) {
	decision := DecisionAllow
	if !success {
		decision = DecisionDeny
	}
	meta := map[string]interface{}{"exit_code": exitCode}
	if output != "" {
		meta["output"] = truncate(output)
	}
	if errText != "" {
		meta["error"] = truncate(errText)
	}
	return s.Record(EventCreate{
		CorrelationID: correlationID,
		Layer:         LayerMesh,
		Actor:         actor,
		Action:        "task:completed",
		ResourceType:  "task",
		ResourceID:    taskID,
		Decision:      decision,
		LedgerLevel:   LevelAction,
		Metadata:      meta,
	})
}
