package database

import (
	"context"

	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/models"
)

type RolesRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewRolesRepo(pg *postgres.Postgres) *RolesRepo {
	return &RolesRepo{pg: pg, table: "user_roles"}
}

func (r *RolesRepo) FindRole(ctx context.Context, userID string) (models.Role, error) {
	var role string
	err := r.pg.Pool.QueryRow(ctx,
		`SELECT role FROM `+r.table+` WHERE user_id = $1::uuid LIMIT 1`, userID,
	).Scan(&role)
	if err != nil {
		return "", readErr("find role of "+userID, err)
	}
	return models.Role(role), nil
}
