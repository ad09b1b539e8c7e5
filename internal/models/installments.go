package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Installment struct {
	ID         string            `json:"id"`
	PlanID     string            `json:"plan_id"`
	Number     int               `json:"number"`
	Amount     decimal.Decimal   `json:"amount"`
	DueDate    time.Time         `json:"due_date"`
	Status     InstallmentStatus `json:"status"`
	ModifiedBy *string           `json:"modified_by,omitempty"`
	ModifiedAt *time.Time        `json:"modified_at,omitempty"`
}

// Classify reports the status shown to users: a pending installment whose
// due date lies before the calendar day of now is overdue.
func (i Installment) Classify(now time.Time) InstallmentStatus {
	if i.Status != InstallmentPending {
		return i.Status
	}
	if dayOf(i.DueDate) < dayOf(now) {
		return InstallmentOverdue
	}
	return InstallmentPending
}

// dayOf numbers the calendar day of t in its own zone.
func dayOf(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}

// IsOpen is true for anything not yet settled, stored overdue included.
func (i Installment) IsOpen() bool {
	return i.Status != InstallmentPaid
}

type InstallmentDraft struct {
	Number  int
	Amount  decimal.Decimal
	DueDate time.Time
}
