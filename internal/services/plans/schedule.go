package plans

import (
	"fmt"
	"sort"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

// BuildSchedule spreads the premium over Term monthly installments. The
// first one is FirstInstallment (or an even share when zero); the rest is
// split evenly and the last installment takes the rounding residue.
func BuildSchedule(d models.PlanDraft) ([]models.InstallmentDraft, error) {
	if d.Term <= 0 {
		return nil, apperr.Invalid("term", "must be at least 1")
	}
	if !d.TotalPremium.IsPositive() {
		return nil, apperr.Invalid("total_premium", "must be greater than zero")
	}
	if d.FirstDueDate.IsZero() {
		return nil, apperr.Invalid("first_due_date", "required")
	}

	n := int64(d.Term)
	first := d.FirstInstallment
	if first.IsZero() {
		first = d.TotalPremium.Div(decimal.NewFromInt(n)).Truncate(2)
	}
	if first.IsNegative() || first.GreaterThan(d.TotalPremium) {
		return nil, apperr.Invalid("first_installment", "must be between zero and the total premium")
	}
	if n == 1 {
		if !first.Equal(d.TotalPremium) && !d.FirstInstallment.IsZero() {
			return nil, apperr.Invalid("first_installment", "a single installment must equal the total premium")
		}
		return []models.InstallmentDraft{{Number: 1, Amount: d.TotalPremium, DueDate: d.FirstDueDate}}, nil
	}

	rest := d.TotalPremium.Sub(first)
	share := rest.Div(decimal.NewFromInt(n - 1)).Truncate(2)

	out := make([]models.InstallmentDraft, 0, d.Term)
	out = append(out, models.InstallmentDraft{Number: 1, Amount: first, DueDate: d.FirstDueDate})
	assigned := decimal.Zero
	for i := 2; i <= d.Term; i++ {
		amount := share
		if i == d.Term {
			amount = rest.Sub(assigned)
		}
		assigned = assigned.Add(amount)
		out = append(out, models.InstallmentDraft{
			Number:  i,
			Amount:  amount,
			DueDate: addMonths(d.FirstDueDate, i-1),
		})
	}
	return out, nil
}

// CheckSchedule validates a schedule typed in by hand.
func CheckSchedule(total decimal.Decimal, schedule []models.InstallmentDraft) error {
	if len(schedule) == 0 {
		return apperr.Invalid("installments", "at least one installment is required")
	}
	sorted := make([]models.InstallmentDraft, len(schedule))
	copy(sorted, schedule)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	sum := decimal.Zero
	for i, in := range sorted {
		if in.Number != i+1 {
			return apperr.Invalid("installments", fmt.Sprintf("numbers must run 1..%d without gaps or repeats", len(sorted)))
		}
		if err := apperr.CheckAmount(fmt.Sprintf("installments[#%d]", in.Number), in.Amount); err != nil {
			return err
		}
		if in.DueDate.IsZero() {
			return apperr.Invalid("installments", fmt.Sprintf("installment #%d needs a due date", in.Number))
		}
		sum = sum.Add(in.Amount)
	}
	if !sum.Equal(total) {
		return apperr.Invalid("installments", fmt.Sprintf("installments add up to %s but the premium is %s",
			sum.StringFixed(2), total.StringFixed(2)))
	}
	return nil
}

// addMonths keeps the day of month, clamped to the last day of shorter months.
func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	last := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > last {
		d = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, 0, 0, 0, 0, t.Location())
}
