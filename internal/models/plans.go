package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is the installment schedule agreed for one policy of one client.
type Plan struct {
	ID               string          `json:"id"`
	PolicyID         string          `json:"policy_id"`
	ClientID         string          `json:"client_id"`
	PolicyNumber     *string         `json:"policy_number,omitempty"`
	TotalPremium     decimal.Decimal `json:"total_premium"`
	Term             int             `json:"term"`
	FirstDueDate     time.Time       `json:"first_due_date"`
	FirstInstallment decimal.Decimal `json:"first_installment"`
	PolicyDocument   *string         `json:"policy_document,omitempty"`
	Note             *string         `json:"note,omitempty"`
	Status           PlanStatus      `json:"status"`
	CreatedBy        *string         `json:"created_by,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ModifiedBy       *string         `json:"modified_by,omitempty"`
	ModifiedAt       *time.Time      `json:"modified_at,omitempty"`
}

type PlanDraft struct {
	PolicyID         string
	ClientID         string
	PolicyNumber     *string
	TotalPremium     decimal.Decimal
	Term             int
	FirstDueDate     time.Time
	FirstInstallment decimal.Decimal
	PolicyDocument   *string
	Note             *string
}

type PlanChanges struct {
	PolicyNumber   *string
	PolicyDocument *string
	Note           *string
}

func (c PlanChanges) Empty() bool {
	return c.PolicyNumber == nil && c.PolicyDocument == nil && c.Note == nil
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	switch {
	case p.Limit <= 0:
		p.Limit = 50
	case p.Limit > 200:
		p.Limit = 200
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
