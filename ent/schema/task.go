package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Task holds the schema definition for a scheduled unit of work.
type Task struct {
	ent.Schema
}

// Fields of the Task.
func (Task) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.Enum("status").
			Values("pending", "planning", "awaiting_approval", "queued", "running",
				"completed", "failed", "cancelled").
			Default("pending"),
		field.Text("request"),
		field.Enum("target_mode").
			Values("specific", "any", "all", "role").
			Default("any"),
		field.String("target_agent_id").
			Optional().
			Nillable(),
		field.String("target_role").
			Optional().
			Nillable(),
		field.Int("priority").
			Default(5),
		field.JSON("plan", map[string]interface{}{}).
			Optional().
			Comment("Plan JSON: target_agent, workspace, steps, commands, risk_level"),
		field.String("assigned_agent_id").
			Optional().
			Nillable(),
		field.Int("exit_code").
			Optional().
			Nillable(),
		field.Text("output").
			Optional().
			Nillable(),
		field.Text("error").
			Optional().
			Nillable(),
		field.Bool("requires_approval").
			Default(true),
		field.String("created_by").
			Default("user"),
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("planned_at").
			Optional().
			Nillable(),
		field.Time("approved_at").
			Optional().
			Nillable(),
		field.Time("started_at").
			Optional().
			Nillable(),
		field.Time("completed_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the Task.
func (Task) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("assigned_agent_id"),
		index.Fields("created_at"),
	}
}
