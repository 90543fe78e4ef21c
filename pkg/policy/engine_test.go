package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectPrecedence_Order(t *testing.T) {
	assert.Equal(t, Deny, HigherEffect(Allow, Deny))
	assert.Equal(t, Warn, HigherEffect(Warn, ShadowDeny))
	assert.Equal(t, ShadowDeny, HigherEffect(Allow, ShadowDeny))
	assert.Equal(t, Deny, HigherEffect(Deny, Warn))
}

func TestLedgerPrecedence_Order(t *testing.T) {
	assert.Equal(t, LedgerFull, HigherLedgerLevel(LedgerAction, LedgerFull))
	assert.Equal(t, LedgerAction, HigherLedgerLevel(LedgerDecision, LedgerAction))
	assert.Equal(t, LedgerDecision, HigherLedgerLevel(LedgerNone, LedgerDecision))
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, matchesPattern("*", "anything:at:all"))
	assert.True(t, matchesPattern("task.*", "task.create"))
	assert.False(t, matchesPattern("task.*", "task:create"))
	assert.True(t, matchesPattern("task.**", "task.create:approve"))
	assert.False(t, matchesPattern("task.create", "task.delete"))
}

func testPack(scope string, policies ...Policy) PolicyPack {
	return PolicyPack{
		Version:            "v1",
		Scope:              scope,
		DefaultStance:      Deny,
		DefaultLedgerLevel: LedgerDecision,
		Policies:           policies,
	}
}

// I5: evaluating the same request twice against the same engine
// produces the same decision.
func TestEvaluate_Deterministic(t *testing.T) {
	pack := testPack("ops",
		Policy{ID: "allow-read", Effect: Allow, Priority: 10, Action: "task.read", Resource: "*", Subject: SubjectMatch{Role: "*"}, LedgerLevel: LedgerNone},
		Policy{ID: "deny-delete", Effect: Deny, Priority: 20, Action: "task.delete", Resource: "*", Subject: SubjectMatch{Role: "*"}, LedgerLevel: LedgerFull},
	)
	e := NewEngine(map[string]PolicyPack{"ops": pack}, nil)

	req := EvaluateRequest{
		Subject: Subject{Role: "operator"},
		Action:  "task.delete",
		Resource: Resource{Type: "worker_pool"},
	}

	first := e.Evaluate(req)
	second := e.Evaluate(req)
	assert.Equal(t, first, second)
	assert.Equal(t, Deny, first.Decision)
	assert.Equal(t, "deny-delete", first.PolicyID)
	assert.Equal(t, LedgerFull, first.RequiredLedgerLevel)
}

func TestEvaluate_HighestPriorityWins(t *testing.T) {
	pack := testPack("ops",
		Policy{ID: "low", Effect: Allow, Priority: 1, Action: "task.*", Resource: "*", Subject: SubjectMatch{Role: "*"}},
		Policy{ID: "high", Effect: Deny, Priority: 100, Action: "task.*", Resource: "*", Subject: SubjectMatch{Role: "*"}},
	)
	e := NewEngine(map[string]PolicyPack{"ops": pack}, nil)

	resp := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "student"},
		Action:   "task.create",
		Resource: Resource{Type: "task"},
	})
	assert.Equal(t, "high", resp.PolicyID)
	assert.Equal(t, Deny, resp.Decision)
}

// S5: a policy that matches but whose condition fails does not win;
// evaluation falls through to the scope default, and the required
// ledger level still reflects the failed policy's own level.
func TestEvaluate_ConditionNotMet_FallsBackButLedgerEscalates(t *testing.T) {
	pack := testPack("ops",
		Policy{
			ID: "needs-claim", Effect: Allow, Priority: 50,
			Action: "task.approve", Resource: "*", Subject: SubjectMatch{Role: "*"},
			Condition:   Condition{ClaimCheck: "task:approver"},
			LedgerLevel: LedgerFull,
		},
	)
	registry := map[string]ServiceRegistryEntry{
		"operator.internal": {DefaultStance: Warn, LedgerLevel: LedgerAction},
	}
	e := NewEngine(map[string]PolicyPack{"ops": pack}, registry)

	resp := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "operator"},
		Action:   "task.approve",
		Resource: Resource{Type: "task"},
		Context: Context{
			RequestMetadata: RequestMetadata{Host: "operator.internal"},
		},
	})

	assert.Equal(t, Warn, resp.Decision)
	assert.Empty(t, resp.PolicyID)
	assert.Contains(t, resp.Reason, "task:approver")
	assert.Equal(t, LedgerFull, resp.RequiredLedgerLevel)
}

func TestEvaluate_NoMatch_UsesScopeDefault(t *testing.T) {
	e := NewEngine(nil, map[string]ServiceRegistryEntry{
		"edge.internal": {DefaultStance: ShadowDeny, LedgerLevel: LedgerDecision},
	})

	resp := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "anonymous"},
		Action:   "task.create",
		Resource: Resource{Type: "task"},
		Context:  Context{RequestMetadata: RequestMetadata{Host: "edge.internal"}},
	})
	assert.Equal(t, ShadowDeny, resp.Decision)
	assert.Contains(t, resp.Reason, "no matching policy")
}

func TestEvaluate_SubjectAttributeMatch(t *testing.T) {
	pack := testPack("ops",
		Policy{
			ID: "tenant-scoped", Effect: Allow, Priority: 10,
			Action: "task.*", Resource: "*",
			Subject: SubjectMatch{Role: "*", Attributes: map[string]interface{}{"tenant": "acme"}},
		},
	)
	e := NewEngine(map[string]PolicyPack{"ops": pack}, nil)

	match := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "operator", Attributes: map[string]interface{}{"tenant": "acme"}},
		Action:   "task.create",
		Resource: Resource{Type: "task"},
	})
	assert.Equal(t, "tenant-scoped", match.PolicyID)

	noMatch := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "operator", Attributes: map[string]interface{}{"tenant": "other"}},
		Action:   "task.create",
		Resource: Resource{Type: "task"},
	})
	assert.Empty(t, noMatch.PolicyID)
}

func TestLoad_ReadsRegistryAndPacks(t *testing.T) {
	dir := t.TempDir()

	registryYAML := `
services:
  ops.internal:
    policy_scope: ops
    default_stance: warn
    ledger_level: action
`
	packYAML := `
version: "1"
scope: ops
default_stance: deny
default_ledger_level: decision
policies:
  - id: allow-read
    description: operators may read tasks
    effect: allow
    priority: 10
    subject:
      role: operator
    action: task.read
    resource: task
    ledger_level: none
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "service_registry.yaml"), []byte(registryYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "policies.ops.yaml"), []byte(packYAML), 0o644))

	e, err := Load(dir)
	require.NoError(t, err)
	require.Contains(t, e.Packs(), "ops")
	assert.Len(t, e.Packs()["ops"].Policies, 1)

	resp := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "operator"},
		Action:   "task.read",
		Resource: Resource{Type: "task"},
		Context:  Context{RequestMetadata: RequestMetadata{Host: "ops.internal"}},
	})
	assert.Equal(t, Allow, resp.Decision)
	assert.Equal(t, "allow-read", resp.PolicyID)
}

func TestLoad_MissingDirYieldsEmptyEngine(t *testing.T) {
	e, err := Load(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, e.Packs())

	resp := e.Evaluate(EvaluateRequest{
		Subject:  Subject{Role: "anyone"},
		Action:   "task.create",
		Resource: Resource{Type: "task"},
	})
	assert.Equal(t, Deny, resp.Decision)
}
