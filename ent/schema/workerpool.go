package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// WorkerPool holds the schema definition for one reconciler-managed
// pool of agent workers backing a queue.
type WorkerPool struct {
	ent.Schema
}

// Fields of the WorkerPool.
func (WorkerPool) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("name").
			Unique(),
		field.String("pack_id").
			Optional().
			Nillable(),
		field.String("queue_name"),
		field.Int("min_workers").
			Default(1),
		field.Int("max_workers").
			Default(5),
		field.Int("target_latency_ms").
			Default(1000),
		field.Int("current_workers").
			Default(1),
		field.Int("queue_depth").
			Default(0),
		field.Float("avg_latency_ms").
			Default(0),
		field.Float("error_rate").
			Default(0),
		field.Enum("status").
			Values("active", "paused").
			Default("active"),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// Indexes of the WorkerPool.
func (WorkerPool) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("status"),
	}
}
