package database

import (
	"context"
	_ "embed"
	"fmt"

	"brokerage_ledger/internal/config/connections/postgres"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema creates the ledger tables when they are missing.
func EnsureSchema(ctx context.Context, pg *postgres.Postgres) error {
	if _, err := pg.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
