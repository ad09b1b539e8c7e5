package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"brokerage_ledger/internal/adapters/receipts"
	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	msgLoadFailed    = "Could not load the payment plan"
	msgRecordFailed  = "Could not record the payment"
	msgAmendFailed   = "Could not update the payment"
	msgRetireFailed  = "Could not delete the payment"
	msgRecorded      = "Payment recorded"
	msgAmended       = "Payment updated"
	msgRetired       = "Payment deleted"
	msgUnlinked      = "The payment was recorded without an installment; tracking of this plan is less precise"
	msgUnlinkedAmend = "The payment is no longer linked to an installment; tracking of this plan is less precise"
)

type Deps struct {
	Plans        ports.PlanStore
	Installments ports.InstallmentStore
	Payments     ports.PaymentStore
	Receipts     ports.ReceiptStore
	Notify       ports.Notifier

	MaxReceiptBytes int64
	NewReceiptKey   func(filename string) string
	Now             func() time.Time
}

// Reconciler owns the single active ledger of a session. It is not safe for
// concurrent use; every write goes straight to the stores.
type Reconciler struct {
	deps    Deps
	session models.Session
	ledger  *Ledger
	lastErr error
}

func New(deps Deps, session models.Session) *Reconciler {
	if deps.NewReceiptKey == nil {
		deps.NewReceiptKey = receipts.NewKey
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MaxReceiptBytes <= 0 {
		deps.MaxReceiptBytes = receipts.DefaultMaxBytes
	}
	return &Reconciler{deps: deps, session: session}
}

type PaymentDraft struct {
	PlanID                string
	InstallmentID         string
	Amount                decimal.Decimal
	Date                  time.Time
	Method                models.PaymentMethod
	Note                  *string
	Receipt               *models.ReceiptFile
	ConfirmAmountMismatch bool
}

// PaymentChanges is a partial amend. InstallmentID nil keeps the current
// link, an empty string clears it.
type PaymentChanges struct {
	Amount                *decimal.Decimal
	Date                  *time.Time
	Method                *models.PaymentMethod
	Note                  *string
	Receipt               *models.ReceiptFile
	InstallmentID         *string
	ConfirmAmountMismatch bool
}

func (r *Reconciler) Ledger() *Ledger { return r.ledger }

func (r *Reconciler) LastError() error { return r.lastErr }

func (r *Reconciler) Session() models.Session { return r.session }

func (r *Reconciler) LoadLedger(ctx context.Context, planID string) (*Ledger, error) {
	const op = "LOAD"
	planID = strings.TrimSpace(planID)
	r.ledger = nil
	if planID == "" {
		return nil, r.fail(ctx, op, apperr.Invalid("plan_id", "required"), msgLoadFailed)
	}

	lg, err := r.fetch(ctx, planID)
	if err != nil {
		return nil, r.fail(ctx, op, err, msgLoadFailed)
	}
	if lg.Plan.Status == models.PlanDeleted {
		return nil, r.fail(ctx, op, fmt.Errorf("plan %s: %w", planID, apperr.ErrNotFound), msgLoadFailed)
	}

	r.ledger = lg
	r.lastErr = nil
	log.Printf("[LEDGER][LOAD][OK] plan=%s installments=%d payments=%d", planID, len(lg.Installments), len(lg.Payments))
	return lg, nil
}

func (r *Reconciler) fetch(ctx context.Context, planID string) (*Ledger, error) {
	plan, err := r.deps.Plans.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", planID, err)
	}
	installments, err := r.deps.Installments.ListByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load installments of %s: %w", planID, err)
	}
	payments, err := r.deps.Payments.ListActiveByPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("load payments of %s: %w", planID, err)
	}
	return &Ledger{Plan: plan, Installments: installments, Payments: payments}, nil
}

func (r *Reconciler) RecordPayment(ctx context.Context, d PaymentDraft) (models.Payment, error) {
	const op = "RECORD"
	lg, err := r.writable()
	if err != nil {
		return models.Payment{}, r.fail(ctx, op, err, msgRecordFailed)
	}
	if err := r.checkDraft(lg, &d); err != nil {
		return models.Payment{}, r.fail(ctx, op, err, msgRecordFailed)
	}

	var inst *models.Installment
	if d.InstallmentID != "" {
		in, err := claimable(lg, d.InstallmentID, "")
		if err != nil {
			return models.Payment{}, r.fail(ctx, op, err, msgRecordFailed)
		}
		if !d.Amount.Equal(in.Amount) && !d.ConfirmAmountMismatch {
			return models.Payment{}, r.fail(ctx, op, &apperr.AmountMismatch{
				InstallmentID: in.ID, Expected: in.Amount, Actual: d.Amount,
			}, msgRecordFailed)
		}
		inst = &in
	}

	undo := &undoLog{op: op}
	actor := r.session.Actor()

	var receiptKey, receiptURL *string
	if d.Receipt != nil {
		key, url, err := r.storeReceipt(ctx, *d.Receipt, undo)
		if err != nil {
			return models.Payment{}, r.fail(ctx, op, err, msgRecordFailed)
		}
		receiptKey, receiptURL = &key, &url
	}

	if inst != nil {
		if err := r.markInstallment(ctx, inst.ID, models.InstallmentPaid, undo); err != nil {
			undo.run(ctx)
			return models.Payment{}, r.fail(ctx, op, err, msgRecordFailed)
		}
	}

	row := models.Payment{
		ID:         uuid.NewString(),
		PlanID:     lg.Plan.ID,
		Amount:     d.Amount,
		Date:       d.Date,
		Method:     d.Method,
		ReceiptKey: receiptKey,
		ReceiptURL: receiptURL,
		Note:       d.Note,
		Status:     models.PaymentActive,
		CreatedBy:  actor,
		CreatedAt:  r.deps.Now().UTC(),
	}
	if inst != nil {
		id := inst.ID
		row.InstallmentID = &id
	}

	created, err := r.deps.Payments.Insert(ctx, row)
	if err != nil {
		undo.run(ctx)
		return models.Payment{}, r.fail(ctx, op, asWrite("insert payment", err), msgRecordFailed)
	}

	if inst == nil && lg.HasOpenInstallments() {
		r.deps.Notify.Warning(ctx, msgUnlinked)
	}

	r.refresh(ctx, func(l *Ledger) {
		l.upsertPayment(created)
		if inst != nil {
			l.setInstallmentStatus(inst.ID, models.InstallmentPaid)
		}
	})
	r.lastErr = nil
	log.Printf("[LEDGER][RECORD][OK] plan=%s payment=%s installment=%s amount=%s",
		lg.Plan.ID, created.ID, created.Link(), created.Amount.StringFixed(2))
	r.deps.Notify.Success(ctx, msgRecorded)
	return created, nil
}

func (r *Reconciler) AmendPayment(ctx context.Context, paymentID string, c PaymentChanges) (models.Payment, error) {
	const op = "AMEND"
	lg, err := r.writable()
	if err != nil {
		return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
	}
	cur, ok := lg.Payment(strings.TrimSpace(paymentID))
	if !ok {
		return models.Payment{}, r.fail(ctx, op,
			apperr.Invalid("payment_id", "payment is not an active payment of this plan"), msgAmendFailed)
	}
	if err := r.checkChanges(&c); err != nil {
		return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
	}

	oldLink := cur.Link()
	newLink := oldLink
	if c.InstallmentID != nil {
		newLink = strings.TrimSpace(*c.InstallmentID)
	}
	relink := newLink != oldLink

	amount := cur.Amount
	if c.Amount != nil {
		amount = *c.Amount
	}
	if newLink != "" && (relink || c.Amount != nil) {
		in, err := claimable(lg, newLink, cur.ID)
		if err != nil {
			return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
		}
		if !amount.Equal(in.Amount) && !c.ConfirmAmountMismatch {
			return models.Payment{}, r.fail(ctx, op, &apperr.AmountMismatch{
				InstallmentID: in.ID, Expected: in.Amount, Actual: amount,
			}, msgAmendFailed)
		}
	}

	undo := &undoLog{op: op}
	actor := r.session.Actor()

	upd := models.PaymentUpdate{
		Amount:     c.Amount,
		Date:       c.Date,
		Method:     c.Method,
		Note:       c.Note,
		ModifiedBy: actor,
	}
	if c.Receipt != nil {
		key, url, err := r.storeReceipt(ctx, *c.Receipt, undo)
		if err != nil {
			return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
		}
		upd.ReceiptKey, upd.ReceiptURL = &key, &url
	}

	if relink {
		if oldLink != "" {
			if err := r.markInstallment(ctx, oldLink, models.InstallmentPending, undo); err != nil {
				undo.run(ctx)
				return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
			}
		}
		if newLink != "" {
			if err := r.markInstallment(ctx, newLink, models.InstallmentPaid, undo); err != nil {
				undo.run(ctx)
				return models.Payment{}, r.fail(ctx, op, err, msgAmendFailed)
			}
			link := newLink
			upd.InstallmentID = &link
		}
		upd.SetInstallment = true
	}

	updated, err := r.deps.Payments.Update(ctx, cur.ID, upd)
	if err != nil {
		undo.run(ctx)
		return models.Payment{}, r.fail(ctx, op, asWrite("update payment", err), msgAmendFailed)
	}

	if relink && newLink == "" && len(lg.Installments) > 0 {
		r.deps.Notify.Warning(ctx, msgUnlinkedAmend)
	}

	r.refresh(ctx, func(l *Ledger) {
		l.upsertPayment(updated)
		if relink {
			if oldLink != "" {
				l.setInstallmentStatus(oldLink, models.InstallmentPending)
			}
			if newLink != "" {
				l.setInstallmentStatus(newLink, models.InstallmentPaid)
			}
		}
	})
	r.lastErr = nil
	log.Printf("[LEDGER][AMEND][OK] plan=%s payment=%s link=%q->%q", lg.Plan.ID, cur.ID, oldLink, newLink)
	r.deps.Notify.Success(ctx, msgAmended)
	return updated, nil
}

// RetirePayment soft deletes a payment and reopens its installment. Calling
// it twice for the same id fails the second time without touching any
// installment.
func (r *Reconciler) RetirePayment(ctx context.Context, paymentID string) error {
	const op = "RETIRE"
	lg, err := r.writable()
	if err != nil {
		return r.fail(ctx, op, err, msgRetireFailed)
	}
	cur, ok := lg.Payment(strings.TrimSpace(paymentID))
	if !ok {
		return r.fail(ctx, op,
			apperr.Invalid("payment_id", "payment is not an active payment of this plan"), msgRetireFailed)
	}

	undo := &undoLog{op: op}
	link := cur.Link()
	if link != "" {
		if err := r.markInstallment(ctx, link, models.InstallmentPending, undo); err != nil {
			return r.fail(ctx, op, err, msgRetireFailed)
		}
	}

	if err := r.deps.Payments.Retire(ctx, cur.ID, r.session.Actor()); err != nil {
		undo.run(ctx)
		return r.fail(ctx, op, asWrite("retire payment", err), msgRetireFailed)
	}

	r.refresh(ctx, func(l *Ledger) {
		l.dropPayment(cur.ID)
		if link != "" {
			l.setInstallmentStatus(link, models.InstallmentPending)
		}
	})
	r.lastErr = nil
	log.Printf("[LEDGER][RETIRE][OK] plan=%s payment=%s installment=%q", lg.Plan.ID, cur.ID, link)
	r.deps.Notify.Success(ctx, msgRetired)
	return nil
}

func (r *Reconciler) writable() (*Ledger, error) {
	if r.ledger == nil {
		return nil, apperr.Invalid("plan_id", "no payment plan loaded")
	}
	if r.ledger.Plan.Status != models.PlanActive {
		return nil, apperr.Invalid("plan_id", fmt.Sprintf("plan is %s", r.ledger.Plan.Status))
	}
	return r.ledger, nil
}

func (r *Reconciler) checkDraft(lg *Ledger, d *PaymentDraft) error {
	d.PlanID = strings.TrimSpace(d.PlanID)
	d.InstallmentID = strings.TrimSpace(d.InstallmentID)
	if d.PlanID == "" {
		d.PlanID = lg.Plan.ID
	}
	if d.PlanID != lg.Plan.ID {
		return apperr.Invalid("plan_id", "payment belongs to a different plan than the loaded one")
	}
	if err := apperr.CheckAmount("amount", d.Amount); err != nil {
		return err
	}
	m, err := models.ParsePaymentMethod(string(d.Method))
	if err != nil {
		return apperr.Invalid("method", err.Error())
	}
	d.Method = m
	if d.Date.IsZero() {
		d.Date = r.deps.Now()
	}
	if d.Receipt != nil {
		return receipts.Validate(*d.Receipt, r.deps.MaxReceiptBytes)
	}
	return nil
}

func (r *Reconciler) checkChanges(c *PaymentChanges) error {
	if c.Amount != nil {
		if err := apperr.CheckAmount("amount", *c.Amount); err != nil {
			return err
		}
	}
	if c.Method != nil {
		m, err := models.ParsePaymentMethod(string(*c.Method))
		if err != nil {
			return apperr.Invalid("method", err.Error())
		}
		c.Method = &m
	}
	if c.Date != nil && c.Date.IsZero() {
		return apperr.Invalid("date", "must not be empty")
	}
	if c.Receipt != nil {
		return receipts.Validate(*c.Receipt, r.deps.MaxReceiptBytes)
	}
	return nil
}

// claimable returns the installment when it belongs to the ledger and no
// active payment other than except already claims it.
func claimable(lg *Ledger, installmentID, except string) (models.Installment, error) {
	in, ok := lg.Installment(installmentID)
	if !ok {
		return models.Installment{}, apperr.Invalid("installment_id", "installment does not belong to plan")
	}
	if p, ok := lg.ClaimedBy(in.ID); ok && p.ID != except {
		return models.Installment{}, apperr.Invalid("installment_id",
			fmt.Sprintf("installment #%d is already settled by payment %s", in.Number, p.ID))
	}
	return in, nil
}

func (r *Reconciler) storeReceipt(ctx context.Context, f models.ReceiptFile, undo *undoLog) (string, string, error) {
	key := r.deps.NewReceiptKey(f.Name)
	if err := r.deps.Receipts.Upload(ctx, key, f.Body, f.ContentType); err != nil {
		return "", "", &apperr.PreconditionFailure{Step: "receipt upload", Err: err}
	}
	undo.push("delete receipt "+key, func(ctx context.Context) error {
		return r.deps.Receipts.Delete(ctx, key)
	})
	return key, r.deps.Receipts.PublicURL(key), nil
}

// markInstallment writes the status and registers the write that restores
// the status the snapshot holds for the installment.
func (r *Reconciler) markInstallment(ctx context.Context, id string, st models.InstallmentStatus, undo *undoLog) error {
	prev := models.InstallmentPending
	if st == models.InstallmentPending {
		prev = models.InstallmentPaid
	}
	if in, ok := r.ledger.Installment(id); ok {
		prev = in.Status
	}
	actor := r.session.Actor()
	if _, err := r.deps.Installments.SetStatus(ctx, id, st, actor); err != nil {
		return asWrite(fmt.Sprintf("set installment %s %s", id, st), err)
	}
	undo.push(fmt.Sprintf("installment %s back to %s", id, prev), func(ctx context.Context) error {
		_, err := r.deps.Installments.SetStatus(ctx, id, prev, actor)
		return err
	})
	return nil
}

// refresh reloads the snapshot after a successful write. When the reload
// fails the write already happened, so the local patch is applied instead.
func (r *Reconciler) refresh(ctx context.Context, patch func(*Ledger)) {
	planID := r.ledger.Plan.ID
	lg, err := r.fetch(ctx, planID)
	if err != nil {
		log.Printf("[LEDGER][REFRESH][WARN] plan=%s err=%v; patching local snapshot", planID, err)
		patch(r.ledger)
		return
	}
	r.ledger = lg
}

func (r *Reconciler) fail(ctx context.Context, op string, err error, userMsg string) error {
	r.lastErr = err
	planID := ""
	if r.ledger != nil {
		planID = r.ledger.Plan.ID
	}
	log.Printf("[LEDGER][%s][ERR] plan=%s user=%s err=%v", op, planID, r.session.UserID, err)

	var mm *apperr.AmountMismatch
	if errors.As(err, &mm) {
		r.deps.Notify.Warning(ctx, mm.Error()+"; confirm to continue")
		return err
	}
	r.deps.Notify.Error(ctx, userMsg+": "+userText(err))
	return err
}

func userText(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "record not found"
	case apperr.IsValidation(err), apperr.IsPrecondition(err):
		return err.Error()
	case apperr.IsWrite(err):
		return "the change was rejected by the database"
	}
	return err.Error()
}

func asWrite(op string, err error) error {
	if apperr.IsWrite(err) || apperr.IsValidation(err) || errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	return &apperr.WriteFailure{Op: op, Err: err}
}
