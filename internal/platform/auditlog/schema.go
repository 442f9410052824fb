package auditlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Schema creates the append-only audit table written by Insert.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS audit_events (
	event_id BIGSERIAL PRIMARY KEY,
	occurred_at TIMESTAMPTZ NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id TEXT NOT NULL,
	request_id TEXT,
	ip INET,
	user_agent TEXT,
	payload JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS audit_events_resource_idx ON audit_events (resource_type, resource_id)`,
}

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func EnsureSchema(ctx context.Context, db Execer) error {
	if db == nil {
		return errors.New("db is required")
	}
	for _, stmt := range Schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure audit schema: %w", err)
		}
	}
	return nil
}
