package ports

import (
	"context"

	"brokerage_ledger/internal/models"
)

type PlanStore interface {
	GetPlan(ctx context.Context, id string) (models.Plan, error)
}

type InstallmentStore interface {
	ListByPlan(ctx context.Context, planID string) ([]models.Installment, error)
	SetStatus(ctx context.Context, id string, status models.InstallmentStatus, by *string) (models.Installment, error)
}

type PaymentStore interface {
	ListActiveByPlan(ctx context.Context, planID string) ([]models.Payment, error)
	Insert(ctx context.Context, p models.Payment) (models.Payment, error)
	Update(ctx context.Context, id string, u models.PaymentUpdate) (models.Payment, error)
	Retire(ctx context.Context, id string, by *string) error
}
