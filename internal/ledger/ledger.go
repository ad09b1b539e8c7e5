// Package ledger keeps installment statuses of a payment plan in step with the
// payments recorded against it.
package ledger

import (
	"time"

	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Ledger is the in-memory view of one plan: the plan row, its installments
// ordered by number and its active payments.
type Ledger struct {
	Plan         models.Plan          `json:"plan"`
	Installments []models.Installment `json:"installments"`
	Payments     []models.Payment     `json:"payments"`
}

func (l *Ledger) Installment(id string) (models.Installment, bool) {
	for _, in := range l.Installments {
		if in.ID == id {
			return in, true
		}
	}
	return models.Installment{}, false
}

func (l *Ledger) Payment(id string) (models.Payment, bool) {
	for _, p := range l.Payments {
		if p.ID == id {
			return p, true
		}
	}
	return models.Payment{}, false
}

// ClaimedBy returns the active payment linked to the installment, if any.
func (l *Ledger) ClaimedBy(installmentID string) (models.Payment, bool) {
	for _, p := range l.Payments {
		if p.Status == models.PaymentActive && p.LinkedTo(installmentID) {
			return p, true
		}
	}
	return models.Payment{}, false
}

func (l *Ledger) HasOpenInstallments() bool {
	for _, in := range l.Installments {
		if in.IsOpen() {
			return true
		}
	}
	return false
}

func (l *Ledger) setInstallmentStatus(id string, st models.InstallmentStatus) {
	for i := range l.Installments {
		if l.Installments[i].ID == id {
			l.Installments[i].Status = st
			return
		}
	}
}

func (l *Ledger) upsertPayment(p models.Payment) {
	for i := range l.Payments {
		if l.Payments[i].ID == p.ID {
			l.Payments[i] = p
			return
		}
	}
	l.Payments = append(l.Payments, p)
}

func (l *Ledger) dropPayment(id string) {
	out := l.Payments[:0]
	for _, p := range l.Payments {
		if p.ID != id {
			out = append(out, p)
		}
	}
	l.Payments = out
}

func (l *Ledger) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, p := range l.Payments {
		if p.Status == models.PaymentActive {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// Remaining may be negative when the plan is overpaid.
func (l *Ledger) Remaining() decimal.Decimal {
	return l.Plan.TotalPremium.Sub(l.TotalPaid())
}

func (l *Ledger) PercentComplete() int {
	return PercentComplete(l.Plan.TotalPremium, l.TotalPaid())
}

// OverdueAmount sums pending installments past their due date. It is only
// informative: overdue installments count as unpaid in Remaining like any
// other open installment.
func (l *Ledger) OverdueAmount(now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, in := range l.Installments {
		if in.Classify(now) == models.InstallmentOverdue {
			total = total.Add(in.Amount)
		}
	}
	return total
}

// PercentComplete is round(100*paid/total) clamped to [0,100]; a zero total
// yields 0.
func PercentComplete(total, paid decimal.Decimal) int {
	if !total.IsPositive() {
		return 0
	}
	pct := paid.Mul(hundred).Div(total).Round(0).IntPart()
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	}
	return int(pct)
}

type InstallmentView struct {
	models.Installment
	Display   models.InstallmentStatus `json:"display_status"`
	PaymentID *string                  `json:"payment_id,omitempty"`
}

type Summary struct {
	PlanID          string            `json:"plan_id"`
	TotalPremium    decimal.Decimal   `json:"total_premium"`
	TotalPaid       decimal.Decimal   `json:"total_paid"`
	Remaining       decimal.Decimal   `json:"remaining"`
	PercentComplete int               `json:"percent_complete"`
	OverdueAmount   decimal.Decimal   `json:"overdue_amount"`
	PaymentCount    int               `json:"payment_count"`
	Installments    []InstallmentView `json:"installments"`
}

func (l *Ledger) Summary(now time.Time) Summary {
	views := make([]InstallmentView, 0, len(l.Installments))
	for _, in := range l.Installments {
		v := InstallmentView{Installment: in, Display: in.Classify(now)}
		if p, ok := l.ClaimedBy(in.ID); ok {
			id := p.ID
			v.PaymentID = &id
		}
		views = append(views, v)
	}
	return Summary{
		PlanID:          l.Plan.ID,
		TotalPremium:    l.Plan.TotalPremium,
		TotalPaid:       l.TotalPaid(),
		Remaining:       l.Remaining(),
		PercentComplete: l.PercentComplete(),
		OverdueAmount:   l.OverdueAmount(now),
		PaymentCount:    len(l.Payments),
		Installments:    views,
	}
}
