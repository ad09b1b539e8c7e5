package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/models"

	"github.com/jackc/pgx/v5"
)

type PlansRepo struct {
	pg    *postgres.Postgres
	table string
}

func NewPlansRepo(pg *postgres.Postgres) *PlansRepo {
	return &PlansRepo{pg: pg, table: "payment_plans"}
}

const planColumns = `
	id::text, policy_id::text, client_id::text, policy_number,
	total_premium::text, term, first_due_date, first_installment::text,
	policy_document, note, status,
	created_by::text, created_at, modified_by::text, modified_at`

func scanPlan(row rowScanner) (models.Plan, error) {
	var (
		p              models.Plan
		premium, first string
		status         string
	)
	err := row.Scan(
		&p.ID, &p.PolicyID, &p.ClientID, &p.PolicyNumber,
		&premium, &p.Term, &p.FirstDueDate, &first,
		&p.PolicyDocument, &p.Note, &status,
		&p.CreatedBy, &p.CreatedAt, &p.ModifiedBy, &p.ModifiedAt,
	)
	if err != nil {
		return p, err
	}
	if p.TotalPremium, err = money("total_premium", premium); err != nil {
		return p, err
	}
	if p.FirstInstallment, err = money("first_installment", first); err != nil {
		return p, err
	}
	if p.Status, err = models.ParsePlanStatus(status); err != nil {
		return p, err
	}
	return p, nil
}

func (r *PlansRepo) GetPlan(ctx context.Context, id string) (models.Plan, error) {
	row := r.pg.Pool.QueryRow(ctx, `SELECT `+planColumns+` FROM `+r.table+` WHERE id = $1::uuid`, id)
	p, err := scanPlan(row)
	if err != nil {
		return models.Plan{}, readErr("get plan "+id, err)
	}
	return p, nil
}

// ListByClient returns the client's plans that are not deleted, newest first.
func (r *PlansRepo) ListByClient(ctx context.Context, clientID string, page models.Page) ([]models.Plan, error) {
	page = page.Normalize()
	rows, err := r.pg.Pool.Query(ctx, `
		SELECT `+planColumns+`
		  FROM `+r.table+`
		 WHERE client_id = $1::uuid
		   AND status <> 'deleted'
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		clientID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, readErr("list plans of client "+clientID, err)
	}
	defer rows.Close()

	out := make([]models.Plan, 0)
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, readErr("scan plan", err)
		}
		out = append(out, p)
	}
	return out, readErr("list plans of client "+clientID, rows.Err())
}

// Create writes the plan and its whole schedule in one transaction.
func (r *PlansRepo) Create(ctx context.Context, p models.Plan, schedule []models.Installment) (models.Plan, error) {
	tx, err := r.pg.Pool.Begin(ctx)
	if err != nil {
		return models.Plan{}, writeErr("begin create plan", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			log.Printf("[DB][PLANS][ERR] rollback: %v", err)
		}
	}()

	row := tx.QueryRow(ctx, `
		INSERT INTO `+r.table+` (
			id, policy_id, client_id, policy_number,
			total_premium, term, first_due_date, first_installment,
			policy_document, note, status, created_by, created_at
		) VALUES (
			$1::uuid, $2::uuid, $3::uuid, $4,
			$5::numeric, $6::int, $7::date, $8::numeric,
			$9, $10, $11, $12::uuid, NOW()
		)
		RETURNING `+planColumns,
		p.ID, p.PolicyID, p.ClientID, p.PolicyNumber,
		amountArg(p.TotalPremium), p.Term, p.FirstDueDate, amountArg(p.FirstInstallment),
		p.PolicyDocument, p.Note, string(p.Status), p.CreatedBy,
	)
	created, err := scanPlan(row)
	if err != nil {
		return models.Plan{}, writeErr("insert plan", err)
	}

	batch := &pgx.Batch{}
	for _, in := range schedule {
		batch.Queue(insertInstallmentQuery,
			in.ID, created.ID, in.Number, amountArg(in.Amount), in.DueDate, string(in.Status), p.CreatedBy,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for _, in := range schedule {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return models.Plan{}, writeErr(fmt.Sprintf("insert installment #%d", in.Number), err)
		}
	}
	if err := br.Close(); err != nil {
		return models.Plan{}, writeErr("close installment batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Plan{}, writeErr("commit create plan", err)
	}
	log.Printf("[DB][PLANS][OK] created plan=%s installments=%d", created.ID, len(schedule))
	return created, nil
}

func (r *PlansRepo) Update(ctx context.Context, id string, c models.PlanChanges, by *string) (models.Plan, error) {
	sets := make([]string, 0, 5)
	args := []any{id}
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if c.PolicyNumber != nil {
		add("policy_number", *c.PolicyNumber)
	}
	if c.PolicyDocument != nil {
		add("policy_document", *c.PolicyDocument)
	}
	if c.Note != nil {
		add("note", *c.Note)
	}
	if len(sets) == 0 {
		return models.Plan{}, apperr.Invalid("plan", "nothing to update")
	}
	args = append(args, by)
	sets = append(sets, fmt.Sprintf("modified_by = $%d::uuid", len(args)), "modified_at = NOW()")

	row := r.pg.Pool.QueryRow(ctx, `
		UPDATE `+r.table+`
		   SET `+strings.Join(sets, ", ")+`
		 WHERE id = $1::uuid AND status <> 'deleted'
		RETURNING `+planColumns, args...)
	p, err := scanPlan(row)
	if err != nil {
		return models.Plan{}, writeErr("update plan "+id, err)
	}
	return p, nil
}

// SetStatus moves a plan between active, inactive and deleted. A deleted plan
// never comes back.
func (r *PlansRepo) SetStatus(ctx context.Context, id string, st models.PlanStatus, by *string) (models.Plan, error) {
	row := r.pg.Pool.QueryRow(ctx, `
		UPDATE `+r.table+`
		   SET status = $2, modified_by = $3::uuid, modified_at = $4
		 WHERE id = $1::uuid AND status <> 'deleted'
		RETURNING `+planColumns,
		id, string(st), by, time.Now().UTC(),
	)
	p, err := scanPlan(row)
	if err != nil {
		return models.Plan{}, writeErr("set plan "+id+" "+string(st), err)
	}
	return p, nil
}
