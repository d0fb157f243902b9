package store

import (
	"context"
	_ "embed"
	"fmt"

	"hivemind.app/conduit/core/db"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Statements are idempotent, so this runs
// unconditionally at startup.
func Migrate(ctx context.Context, database *db.DB) error {
	if _, err := database.Pool().Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}
