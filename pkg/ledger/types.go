// Package ledger implements the append-only governance audit trail:
// every policy decision and agent action is recorded once, indexed by
// id and correlation_id, and mirrored to a daily JSONL file.
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Layer is the system layer an event originated from.
type Layer string

const (
	LayerExperience Layer = "experience"
	LayerGateway    Layer = "gateway"
	LayerGovernance Layer = "governance"
	LayerMesh       Layer = "mesh"
	LayerInfra      Layer = "infra"
)

// Decision mirrors policy.Effect at the ledger boundary so this
// package has no import-time dependency on pkg/policy.
type Decision string

const (
	DecisionAllow      Decision = "allow"
	DecisionDeny       Decision = "deny"
	DecisionWarn       Decision = "warn"
	DecisionShadowDeny Decision = "shadow_deny"
)

// Level is the granularity an event was recorded at.
type Level string

const (
	LevelNone     Level = "none"
	LevelDecision Level = "decision"
	LevelAction   Level = "action"
	LevelFull     Level = "full"
)

// Actor identifies who or what performed the action being recorded.
type Actor struct {
	UserID       string     `json:"user_id,omitempty"`
	Role         string     `json:"role,omitempty"`
	AgentID      string     `json:"agent_id,omitempty"`
	DelegationID *uuid.UUID `json:"delegation_id,omitempty"`
}

// EventCreate is the caller-supplied payload for Record; the ledger
// assigns ID and RecordedAt and fills OccurredAt when absent.
type EventCreate struct {
	CorrelationID uuid.UUID  `json:"correlation_id"`
	IntentID      *uuid.UUID `json:"intent_id,omitempty"`
	SequenceNum   int        `json:"sequence_num"`

	Layer       Layer  `json:"layer"`
	Host        string `json:"host"`
	Service     string `json:"service"`
	PolicyScope string `json:"policy_scope"`

	Actor Actor `json:"actor"`

	Action       string `json:"action"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id,omitempty"`

	Decision      Decision `json:"decision"`
	PolicyID      string   `json:"policy_id,omitempty"`
	PolicyVersion string   `json:"policy_version,omitempty"`

	AssertedFacts []string                 `json:"asserted_facts,omitempty"`
	FactEvidence  map[string]interface{}   `json:"fact_evidence,omitempty"`
	Claims        []map[string]interface{} `json:"claims,omitempty"`

	LedgerLevel     Level                  `json:"ledger_level"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	RequestContext  map[string]interface{} `json:"request_context,omitempty"`
	ResponseSummary map[string]interface{} `json:"response_summary,omitempty"`
	OccurredAt      time.Time              `json:"occurred_at,omitempty"`
}

// Event is a fully recorded, immutable ledger entry.
type Event struct {
	EventCreate
	ID         uuid.UUID `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Query filters a ledger search; zero-value fields are not applied.
type Query struct {
	CorrelationID *uuid.UUID
	IntentID      *uuid.UUID
	ActorUserID   string
	ActorAgentID  string
	Action        string
	PolicyScope   string
	Decision      Decision
	Host          string
	Service       string

	OccurredAfter  *time.Time
	OccurredBefore *time.Time

	Limit  int
	Offset int
}

// Result is a paginated query response.
type Result struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

const (
	defaultLimit = 100
	maxLimit     = 1000
)
