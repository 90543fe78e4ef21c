// Package policy implements the ABAC policy engine: it matches
// (subject, action, resource, context) tuples against priority-ordered
// policy packs and returns a four-valued effect plus the audit level
// callers must carry.
package policy

// Effect is the decision a matching policy produces.
type Effect string

const (
	Allow      Effect = "allow"
	Deny       Effect = "deny"
	Warn       Effect = "warn"
	ShadowDeny Effect = "shadow_deny"
)

// effectPrecedence orders effects for aggregation across multiple
// evaluations: deny > warn > shadow_deny > allow.
var effectPrecedence = map[Effect]int{
	Deny:       4,
	Warn:       3,
	ShadowDeny: 2,
	Allow:      1,
}

// HigherEffect returns whichever of a, b has greater precedence.
func HigherEffect(a, b Effect) Effect {
	if effectPrecedence[b] > effectPrecedence[a] {
		return b
	}
	return a
}

// LedgerLevel is the audit depth a policy (or its absence) demands.
type LedgerLevel string

const (
	LedgerNone     LedgerLevel = "none"
	LedgerDecision LedgerLevel = "decision"
	LedgerAction   LedgerLevel = "action"
	LedgerFull     LedgerLevel = "full"
)

var ledgerPrecedence = map[LedgerLevel]int{
	LedgerFull:     4,
	LedgerAction:   3,
	LedgerDecision: 2,
	LedgerNone:     1,
}

// HigherLedgerLevel returns whichever of a, b demands more audit detail.
func HigherLedgerLevel(a, b LedgerLevel) LedgerLevel {
	if ledgerPrecedence[b] > ledgerPrecedence[a] {
		return b
	}
	return a
}

// Subject identifies the caller a policy's subject-match is checked
// against.
type Subject struct {
	UserID     string                 `json:"user_id,omitempty"`
	Role       string                 `json:"role"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Resource identifies the thing being acted on.
type Resource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// RequestMetadata carries request-scoped routing information.
type RequestMetadata struct {
	Host          string `json:"host"`
	Service       string `json:"service"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// Context carries the claims and asserted facts a Condition checks.
type Context struct {
	Claims          []map[string]interface{} `json:"claims"`
	AssertedFacts   []string                  `json:"asserted_facts"`
	FactEvidence    map[string]interface{}    `json:"fact_evidence,omitempty"`
	RequestMetadata RequestMetadata           `json:"request_metadata"`
}

// EvaluateRequest is the input to Engine.Evaluate.
type EvaluateRequest struct {
	Subject  Subject  `json:"subject"`
	Action   string   `json:"action"`
	Resource Resource `json:"resource"`
	Context  Context  `json:"context"`
}

// EvaluateResponse is the output of Engine.Evaluate.
type EvaluateResponse struct {
	Decision            Effect      `json:"decision"`
	PolicyID            string      `json:"policy_id,omitempty"`
	PolicyVersion       string      `json:"policy_version,omitempty"`
	Reason              string      `json:"reason,omitempty"`
	RequiredLedgerLevel LedgerLevel `json:"required_ledger_level"`
}

// Condition gates a policy match on claims and asserted facts.
type Condition struct {
	ClaimCheck    string                 `yaml:"claim_check,omitempty" json:"claim_check,omitempty"`
	CallerAsserts []string               `yaml:"caller_asserts,omitempty" json:"caller_asserts,omitempty"`
	Custom        map[string]interface{} `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// SubjectMatch is the subject-side of a policy's match criteria.
type SubjectMatch struct {
	Role       string                 `yaml:"role" json:"role"`
	UserID     string                 `yaml:"user_id,omitempty" json:"user_id,omitempty"`
	Attributes map[string]interface{} `yaml:"attributes,omitempty" json:"attributes,omitempty"`
}

// Policy is one rule within a PolicyPack.
type Policy struct {
	ID            string       `yaml:"id" json:"id"`
	Description   string       `yaml:"description" json:"description"`
	Effect        Effect       `yaml:"effect" json:"effect"`
	Priority      int          `yaml:"priority" json:"priority"`
	Subject       SubjectMatch `yaml:"subject" json:"subject"`
	Action        string       `yaml:"action" json:"action"`
	Resource      string       `yaml:"resource" json:"resource"`
	Condition     Condition    `yaml:"condition,omitempty" json:"condition,omitempty"`
	LedgerLevel   LedgerLevel  `yaml:"ledger_level" json:"ledger_level"`
	PolicyVersion string       `yaml:"policy_version" json:"policy_version"`
}

// PolicyPack is a versioned, scoped collection of policies.
type PolicyPack struct {
	Version            string      `yaml:"version" json:"version"`
	Scope              string      `yaml:"scope" json:"scope"`
	DefaultStance      Effect      `yaml:"default_stance" json:"default_stance"`
	DefaultLedgerLevel LedgerLevel `yaml:"default_ledger_level" json:"default_ledger_level"`
	Policies           []Policy    `yaml:"policies" json:"policies"`
}
