package ledger

import (
	"fmt"

	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

type DiscrepancyKind string

const (
	// PaidWithoutPayment: installment is paid but no active payment claims it.
	PaidWithoutPayment DiscrepancyKind = "paid_without_payment"
	// ClaimedButOpen: an active payment claims an installment still open.
	ClaimedButOpen DiscrepancyKind = "claimed_but_open"
	// DoubleClaim: more than one active payment claims the same installment.
	DoubleClaim DiscrepancyKind = "double_claim"
	// ForeignLink: a payment points at an installment outside the plan.
	ForeignLink DiscrepancyKind = "foreign_link"
	// ScheduleTotal: installments do not add up to the plan premium.
	ScheduleTotal DiscrepancyKind = "schedule_total"
)

type Discrepancy struct {
	Kind          DiscrepancyKind `json:"kind"`
	InstallmentID string          `json:"installment_id,omitempty"`
	PaymentID     string          `json:"payment_id,omitempty"`
	Detail        string          `json:"detail"`
}

// CheckConsistency lists every place where the stored installment statuses
// disagree with the active payments of the ledger. An empty result means each
// installment is paid exactly when one active payment claims it.
func (l *Ledger) CheckConsistency() []Discrepancy {
	var out []Discrepancy

	claims := make(map[string][]string, len(l.Installments))
	for _, p := range l.Payments {
		if p.Status != models.PaymentActive || p.InstallmentID == nil {
			continue
		}
		id := *p.InstallmentID
		if _, ok := l.Installment(id); !ok {
			out = append(out, Discrepancy{
				Kind:          ForeignLink,
				InstallmentID: id,
				PaymentID:     p.ID,
				Detail:        "payment links an installment of another plan",
			})
			continue
		}
		claims[id] = append(claims[id], p.ID)
	}

	sum := decimal.Zero
	for _, in := range l.Installments {
		sum = sum.Add(in.Amount)
		ids := claims[in.ID]
		switch {
		case len(ids) > 1:
			out = append(out, Discrepancy{
				Kind:          DoubleClaim,
				InstallmentID: in.ID,
				PaymentID:     ids[1],
				Detail:        fmt.Sprintf("installment #%d claimed by %d payments", in.Number, len(ids)),
			})
		case len(ids) == 1 && in.IsOpen():
			out = append(out, Discrepancy{
				Kind:          ClaimedButOpen,
				InstallmentID: in.ID,
				PaymentID:     ids[0],
				Detail:        fmt.Sprintf("installment #%d is %s but has a payment", in.Number, in.Status),
			})
		case len(ids) == 0 && in.Status == models.InstallmentPaid:
			out = append(out, Discrepancy{
				Kind:          PaidWithoutPayment,
				InstallmentID: in.ID,
				Detail:        fmt.Sprintf("installment #%d is paid without a payment", in.Number),
			})
		}
	}

	if len(l.Installments) > 0 && !sum.Equal(l.Plan.TotalPremium) {
		out = append(out, Discrepancy{
			Kind: ScheduleTotal,
			Detail: fmt.Sprintf("installments add up to %s, plan premium is %s",
				sum.StringFixed(2), l.Plan.TotalPremium.StringFixed(2)),
		})
	}
	return out
}

// Consistent ignores the schedule total, which is best effort only.
func (l *Ledger) Consistent() bool {
	for _, d := range l.CheckConsistency() {
		if d.Kind != ScheduleTotal {
			return false
		}
	}
	return true
}
