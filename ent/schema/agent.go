package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Agent holds the schema definition for a registered remote worker.
type Agent struct {
	ent.Schema
}

// Fields of the Agent.
func (Agent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable().
			Comment("Stable agent identifier chosen by the agent at register time"),
		field.String("hostname"),
		field.String("display_name").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("online", "offline", "busy", "error").
			Default("offline"),
		field.JSON("roles", []string{}).
			Optional(),
		field.JSON("tags", []string{}).
			Optional(),
		field.JSON("capabilities", map[string]interface{}{}).
			Optional().
			Comment("docker/python/node availability, disk_gb, memory_mb"),
		field.JSON("workspaces", []map[string]interface{}{}).
			Optional(),
		field.JSON("telemetry", map[string]interface{}{}).
			Optional().
			Comment("Last reported cpu/memory/disk/uptime/load_average snapshot"),
		field.Time("last_seen").
			Default(time.Now),
		field.Time("registered_at").
			Default(time.Now).
			Immutable(),
		field.String("current_task_id").
			Optional().
			Nillable(),
	}
}

// Indexes of the Agent.
func (Agent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
		index.Fields("last_seen"),
	}
}
