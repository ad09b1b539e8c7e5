package database

import (
	"context"

	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/models"
)

type InstallmentsRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewInstallmentsRepo(pg *postgres.Postgres) *InstallmentsRepo {
	return &InstallmentsRepo{pg: pg, table: "payment_plan_installments"}
}

const insertInstallmentQuery = `
	INSERT INTO payment_plan_installments (
		id, plan_id, number, amount, due_date, status, created_by, created_at
	) VALUES (
		$1::uuid, $2::uuid, $3::int, $4::numeric, $5::date, $6, $7::uuid, NOW()
	)`

const installmentColumns = `
	id::text, plan_id::text, number, amount::text, due_date, status,
	modified_by::text, modified_at`

func scanInstallment(row rowScanner) (models.Installment, error) {
	var (
		in             models.Installment
		amount, status string
	)
	if err := row.Scan(&in.ID, &in.PlanID, &in.Number, &amount, &in.DueDate, &status, &in.ModifiedBy, &in.ModifiedAt); err != nil {
		return in, err
	}
	var err error
	if in.Amount, err = money("amount", amount); err != nil {
		return in, err
	}
	if in.Status, err = models.ParseInstallmentStatus(status); err != nil {
		return in, err
	}
	return in, nil
}

func (r *InstallmentsRepo) ListByPlan(ctx context.Context, planID string) ([]models.Installment, error) {
	rows, err := r.pg.Pool.Query(ctx, `
		SELECT `+installmentColumns+`
		  FROM `+r.table+`
		 WHERE plan_id = $1::uuid
		 ORDER BY number ASC`, planID)
	if err != nil {
		return nil, readErr("list installments of "+planID, err)
	}
	defer rows.Close()

	out := make([]models.Installment, 0)
	for rows.Next() {
		in, err := scanInstallment(rows)
		if err != nil {
			return nil, readErr("scan installment", err)
		}
		out = append(out, in)
	}
	return out, readErr("list installments of "+planID, rows.Err())
}

func (r *InstallmentsRepo) SetStatus(ctx context.Context, id string, st models.InstallmentStatus, by *string) (models.Installment, error) {
	row := r.pg.Pool.QueryRow(ctx, `
		UPDATE `+r.table+`
		   SET status = $2, modified_by = $3::uuid, modified_at = NOW()
		 WHERE id = $1::uuid
		RETURNING `+installmentColumns,
		id, string(st), by,
	)
	in, err := scanInstallment(row)
	if err != nil {
		return models.Installment{}, writeErr("set installment "+id+" "+string(st), err)
	}
	return in, nil
}
