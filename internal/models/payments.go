package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Payment struct {
	ID            string          `json:"id"`
	PlanID        string          `json:"plan_id"`
	InstallmentID *string         `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Method        PaymentMethod   `json:"method"`
	ReceiptKey    *string         `json:"receipt_key,omitempty"`
	ReceiptURL    *string         `json:"receipt_url,omitempty"`
	Note          *string         `json:"note,omitempty"`
	Status        PaymentStatus   `json:"status"`
	CreatedBy     *string         `json:"created_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	ModifiedBy    *string         `json:"modified_by,omitempty"`
	ModifiedAt    *time.Time      `json:"modified_at,omitempty"`
}

func (p Payment) LinkedTo(installmentID string) bool {
	return p.InstallmentID != nil && *p.InstallmentID == installmentID
}

func (p Payment) Link() string {
	if p.InstallmentID == nil {
		return ""
	}
	return *p.InstallmentID
}

// PaymentUpdate is what the store writes on amend. Nil fields are left alone;
// InstallmentID is always written when SetInstallment is true.
type PaymentUpdate struct {
	Amount         *decimal.Decimal
	Date           *time.Time
	Method         *PaymentMethod
	Note           *string
	ReceiptKey     *string
	ReceiptURL     *string
	SetInstallment bool
	InstallmentID  *string
	ModifiedBy     *string
}

// ReceiptFile is an attachment supplied with a payment.
type ReceiptFile struct {
	Name        string
	ContentType string
	Body        []byte
}
