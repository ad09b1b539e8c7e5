package database

import (
	"context"
	"fmt"
	"strings"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/models"
)

type PaymentsRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewPaymentsRepo(pg *postgres.Postgres) *PaymentsRepo {
	return &PaymentsRepo{pg: pg, table: "plan_payments"}
}

const paymentColumns = `
	id::text, plan_id::text, installment_id::text, amount::text, paid_on, method,
	receipt_key, receipt_url, note, status,
	created_by::text, created_at, modified_by::text, modified_at`

func scanPayment(row rowScanner) (models.Payment, error) {
	var (
		p                      models.Payment
		amount, method, status string
	)
	err := row.Scan(
		&p.ID, &p.PlanID, &p.InstallmentID, &amount, &p.Date, &method,
		&p.ReceiptKey, &p.ReceiptURL, &p.Note, &status,
		&p.CreatedBy, &p.CreatedAt, &p.ModifiedBy, &p.ModifiedAt,
	)
	if err != nil {
		return p, err
	}
	if p.Amount, err = money("amount", amount); err != nil {
		return p, err
	}
	if p.Method, err = models.ParsePaymentMethod(method); err != nil {
		return p, err
	}
	if p.Status, err = models.ParsePaymentStatus(status); err != nil {
		return p, err
	}
	return p, nil
}

func (r *PaymentsRepo) ListActiveByPlan(ctx context.Context, planID string) ([]models.Payment, error) {
	rows, err := r.pg.Pool.Query(ctx, `
		SELECT `+paymentColumns+`
		  FROM `+r.table+`
		 WHERE plan_id = $1::uuid
		   AND status = 'active'
		 ORDER BY paid_on DESC, created_at DESC`, planID)
	if err != nil {
		return nil, readErr("list payments of "+planID, err)
	}
	defer rows.Close()

	out := make([]models.Payment, 0)
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, readErr("scan payment", err)
		}
		out = append(out, p)
	}
	return out, readErr("list payments of "+planID, rows.Err())
}

func (r *PaymentsRepo) Insert(ctx context.Context, p models.Payment) (models.Payment, error) {
	row := r.pg.Pool.QueryRow(ctx, `
		INSERT INTO `+r.table+` (
			id, plan_id, installment_id, amount, paid_on, method,
			receipt_key, receipt_url, note, status, created_by, created_at
		) VALUES (
			$1::uuid, $2::uuid, $3::uuid, $4::numeric, $5::date, $6,
			$7, $8, $9, $10, $11::uuid, NOW()
		)
		RETURNING `+paymentColumns,
		p.ID, p.PlanID, p.InstallmentID, amountArg(p.Amount), p.Date, string(p.Method),
		p.ReceiptKey, p.ReceiptURL, p.Note, string(p.Status), p.CreatedBy,
	)
	created, err := scanPayment(row)
	if err != nil {
		return models.Payment{}, writeErr("insert payment", err)
	}
	return created, nil
}

func (r *PaymentsRepo) Update(ctx context.Context, id string, u models.PaymentUpdate) (models.Payment, error) {
	sets := make([]string, 0, 8)
	args := []any{id}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}
	if u.Amount != nil {
		add("amount = $%d::numeric", amountArg(*u.Amount))
	}
	if u.Date != nil {
		add("paid_on = $%d::date", *u.Date)
	}
	if u.Method != nil {
		add("method = $%d", string(*u.Method))
	}
	if u.Note != nil {
		add("note = $%d", *u.Note)
	}
	if u.ReceiptKey != nil {
		add("receipt_key = $%d", *u.ReceiptKey)
	}
	if u.ReceiptURL != nil {
		add("receipt_url = $%d", *u.ReceiptURL)
	}
	if u.SetInstallment {
		add("installment_id = $%d::uuid", u.InstallmentID)
	}
	if len(sets) == 0 {
		return models.Payment{}, apperr.Invalid("payment", "nothing to update")
	}
	add("modified_by = $%d::uuid", u.ModifiedBy)
	sets = append(sets, "modified_at = NOW()")

	row := r.pg.Pool.QueryRow(ctx, `
		UPDATE `+r.table+`
		   SET `+strings.Join(sets, ", ")+`
		 WHERE id = $1::uuid AND status = 'active'
		RETURNING `+paymentColumns, args...)
	p, err := scanPayment(row)
	if err != nil {
		return models.Payment{}, writeErr("update payment "+id, err)
	}
	return p, nil
}

// Retire soft deletes an active payment. Retiring twice reports ErrNotFound.
func (r *PaymentsRepo) Retire(ctx context.Context, id string, by *string) error {
	tag, err := r.pg.Pool.Exec(ctx, `
		UPDATE `+r.table+`
		   SET status = 'retired', modified_by = $2::uuid, modified_at = NOW()
		 WHERE id = $1::uuid AND status = 'active'`, id, by)
	if err != nil {
		return writeErr("retire payment "+id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("retire payment %s: %w", id, apperr.ErrNotFound)
	}
	return nil
}
