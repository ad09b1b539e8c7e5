package processors

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"

	"brokerage_ledger/internal/ledger"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"
	importitems "brokerage_ledger/internal/repository/imports"
)

const PaymentsType = "payments"

type ItemLog interface {
	Log(ctx context.Context, p importitems.LogParams)
}

// PaymentsProcessor records sheet rows as payments. Rows are grouped by plan
// and each group goes through its own reconciler, so every row gets the same
// checks as a payment typed in by hand.
type PaymentsProcessor struct {
	Deps  ledger.Deps
	Items ItemLog
}

func (p *PaymentsProcessor) Type() string { return PaymentsType }

func (p *PaymentsProcessor) ProcessBatch(ctx context.Context, batch []ports.Row) (int, error) {
	if p.Deps.Plans == nil || p.Deps.Installments == nil || p.Deps.Payments == nil {
		return 0, fmt.Errorf("payments processor: stores not configured")
	}

	importRecordID, _ := ctx.Value(ports.CtxImportRecordID).(string)
	session, _ := ctx.Value(ports.CtxSession).(models.Session)
	if !session.Role.CanWrite() {
		return 0, fmt.Errorf("role %q cannot import payments", session.Role)
	}

	log.Printf("[PROC][payments][START] rows=%d import_record_id=%s", len(batch), importRecordID)

	groups := make(map[string][]ports.Row)
	order := make([]string, 0)
	failed := 0
	for _, row := range batch {
		planID := strings.TrimSpace(row.Fields["plan_id"])
		if planID == "" {
			p.log(ctx, importRecordID, row, "", importitems.ItemFailed, "missing plan_id")
			failed++
			continue
		}
		if _, ok := groups[planID]; !ok {
			order = append(order, planID)
		}
		groups[planID] = append(groups[planID], row)
	}

	inserted := 0
	for _, planID := range order {
		rows := groups[planID]
		notes := &rowNotes{}
		deps := p.Deps
		deps.Notify = notes
		rec := ledger.New(deps, session)

		if _, err := rec.LoadLedger(ctx, planID); err != nil {
			for _, row := range rows {
				p.log(ctx, importRecordID, row, "", importitems.ItemFailed, notes.text())
			}
			failed += len(rows)
			continue
		}

		for _, row := range rows {
			notes.reset()
			d, err := draftFromRow(rec.Ledger(), row)
			if err != nil {
				p.log(ctx, importRecordID, row, "", importitems.ItemFailed, err.Error())
				failed++
				continue
			}
			pay, err := rec.RecordPayment(ctx, d)
			if err != nil {
				p.log(ctx, importRecordID, row, "", importitems.ItemFailed, notes.text())
				failed++
				continue
			}
			inserted++
			p.log(ctx, importRecordID, row, pay.ID, importitems.ItemDone, notes.warnings())
		}
	}

	log.Printf("[PROC][payments][DONE] total=%d inserted=%d failed=%d", len(batch), inserted, failed)
	return failed, nil
}

func (p *PaymentsProcessor) log(ctx context.Context, importRecordID string, row ports.Row, id, status, errs string) {
	if status == importitems.ItemFailed {
		log.Printf("[PROC][payments][ROW][ERR] line=%d err=%s", row.Line, errs)
	}
	if p.Items == nil {
		return
	}
	p.Items.Log(ctx, importitems.LogParams{
		ImportRecordID: importRecordID,
		ModelType:      PaymentsType,
		ModelID:        id,
		Row:            row.Line,
		Payload:        row.Fields,
		Status:         status,
		Errors:         errs,
	})
}

func draftFromRow(lg *ledger.Ledger, row ports.Row) (ledger.PaymentDraft, error) {
	v := func(k string) string { return strings.TrimSpace(row.Fields[k]) }

	amount, err := parseAmount(v("amount"))
	if err != nil {
		return ledger.PaymentDraft{}, fmt.Errorf("bad amount %q", v("amount"))
	}
	date := parseDateStrict(v("date"))
	if date == nil {
		return ledger.PaymentDraft{}, fmt.Errorf("bad date %q", v("date"))
	}
	method, err := models.ParsePaymentMethod(v("method"))
	if err != nil {
		return ledger.PaymentDraft{}, err
	}

	d := ledger.PaymentDraft{
		PlanID:                lg.Plan.ID,
		Amount:                amount,
		Date:                  *date,
		Method:                method,
		Note:                  nullIfEmpty(v("note")),
		ConfirmAmountMismatch: parseBool(v("confirm_mismatch")),
	}

	if raw := v("installment_number"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return ledger.PaymentDraft{}, fmt.Errorf("bad installment_number %q", raw)
		}
		in, ok := installmentByNumber(lg, n)
		if !ok {
			return ledger.PaymentDraft{}, fmt.Errorf("plan has no installment #%d", n)
		}
		d.InstallmentID = in.ID
	}
	return d, nil
}

func installmentByNumber(lg *ledger.Ledger, n int) (models.Installment, bool) {
	for _, in := range lg.Installments {
		if in.Number == n {
			return in, true
		}
	}
	return models.Installment{}, false
}

// rowNotes keeps the messages the reconciler produced for the current row so
// they end up in the row's import item instead of the user's feed.
type rowNotes struct {
	warn []string
	err  []string
}

func (n *rowNotes) reset() { n.warn, n.err = nil, nil }

func (n *rowNotes) Success(context.Context, string) {}

func (n *rowNotes) Warning(_ context.Context, msg string) { n.warn = append(n.warn, msg) }

func (n *rowNotes) Error(_ context.Context, msg string) { n.err = append(n.err, msg) }

func (n *rowNotes) warnings() string { return strings.Join(n.warn, "; ") }

func (n *rowNotes) text() string {
	return strings.Join(append(append([]string{}, n.err...), n.warn...), "; ")
}

func Registry(payments *PaymentsProcessor) map[string]ports.Processor {
	return map[string]ports.Processor{
		PaymentsType: payments,
	}
}
