package database

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql"
)

// CreateGINIndexes creates full-text search GIN indexes for PostgreSQL.
// These indexes enable efficient full-text search over task request
// text and ledger event metadata, neither of which ent's schema DSL
// can express directly.
func CreateGINIndexes(ctx context.Context, driver *sql.Driver) error {
	db := driver.DB()

	// GIN index for task request full-text search
	_, err := db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_tasks_request_gin
		ON tasks USING gin(to_tsvector('english', request))`)
	if err != nil {
		return fmt.Errorf("failed to create task request GIN index: %w", err)
	}

	// GIN index for ledger event metadata lookups
	_, err = db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_ledger_events_metadata_gin
		ON ledger_events USING gin(metadata)`)
	if err != nil {
		return fmt.Errorf("failed to create ledger event metadata GIN index: %w", err)
	}

	return nil
}
