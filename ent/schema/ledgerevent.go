package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// LedgerEvent holds the schema definition for one append-only audit
// record. Rows are never updated or deleted by application code.
type LedgerEvent struct {
	ent.Schema
}

// Fields of the LedgerEvent.
func (LedgerEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("correlation_id"),
		field.String("intent_id").
			Optional().
			Nillable(),
		field.Int("sequence_num").
			Default(0),
		field.Enum("layer").
			Values("experience", "gateway", "governance", "mesh", "infra"),
		field.String("host"),
		field.String("service"),
		field.String("policy_scope"),
		field.JSON("actor", map[string]interface{}{}).
			Comment("user_id?, role?, agent_id?, delegation_id?"),
		field.String("action"),
		field.String("resource_type"),
		field.String("resource_id").
			Optional().
			Nillable(),
		field.Enum("decision").
			Values("allow", "deny", "warn", "shadow_deny"),
		field.String("policy_id").
			Optional().
			Nillable(),
		field.String("policy_version").
			Optional().
			Nillable(),
		field.JSON("asserted_facts", []string{}).
			Optional(),
		field.JSON("fact_evidence", map[string]interface{}{}).
			Optional(),
		field.JSON("claims", []map[string]interface{}{}).
			Optional(),
		field.Enum("ledger_level").
			Values("none", "decision", "action", "full"),
		field.JSON("metadata", map[string]interface{}{}).
			Optional(),
		field.JSON("request_context", map[string]interface{}{}).
			Optional(),
		field.JSON("response_summary", map[string]interface{}{}).
			Optional(),
		field.Time("occurred_at"),
		field.Time("recorded_at").
			Default(time.Now).
			Immutable(),
	}
}

// Indexes of the LedgerEvent.
func (LedgerEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("correlation_id"),
		index.Fields("occurred_at"),
		index.Fields("decision"),
		index.Fields("host", "service"),
	}
}
