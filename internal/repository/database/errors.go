package database

import (
	"errors"
	"fmt"

	"brokerage_ledger/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres error codes the repositories translate.
const (
	codeInvalidText   = "22P02"
	codeForeignKey    = "23503"
	codeUniqueViolate = "23505"
	codeCheckViolate  = "23514"
)

// readErr converts errors of SELECTs. Anything unknown is passed on wrapped.
func readErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeInvalidText {
		return apperr.Invalid("id", "malformed identifier")
	}
	return fmt.Errorf("%s: %w", op, err)
}

// writeErr converts errors of INSERT/UPDATE statements into the ledger's
// error kinds. This is the only place pg error codes are looked at.
func writeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == codeInvalidText {
			return apperr.Invalid("id", "malformed identifier")
		}
		return &apperr.WriteFailure{Op: op, Code: pgErr.Code, Err: err}
	}
	return &apperr.WriteFailure{Op: op, Err: err}
}
