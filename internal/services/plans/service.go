// Package plans creates payment plans with their installment schedule and
// manages the plan lifecycle.
package plans

import (
	"context"
	"errors"
	"log"
	"strings"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"

	"github.com/google/uuid"
)

type Repository interface {
	ports.PlanStore
	ListByClient(ctx context.Context, clientID string, page models.Page) ([]models.Plan, error)
	Create(ctx context.Context, p models.Plan, schedule []models.Installment) (models.Plan, error)
	Update(ctx context.Context, id string, c models.PlanChanges, by *string) (models.Plan, error)
	SetStatus(ctx context.Context, id string, st models.PlanStatus, by *string) (models.Plan, error)
}

type Service struct {
	repo    Repository
	notify  ports.Notifier
	session models.Session
}

func NewService(repo Repository, notify ports.Notifier, session models.Session) *Service {
	return &Service{repo: repo, notify: notify, session: session}
}

// CreatePlan stores the plan and its installments together. A nil schedule
// is generated from the draft.
func (s *Service) CreatePlan(ctx context.Context, d models.PlanDraft, schedule []models.InstallmentDraft) (models.Plan, error) {
	if err := checkDraft(&d); err != nil {
		return models.Plan{}, s.fail(ctx, "create", err, "Could not create the payment plan")
	}

	var err error
	if schedule == nil {
		schedule, err = BuildSchedule(d)
	} else {
		err = CheckSchedule(d.TotalPremium, schedule)
		if err == nil && len(schedule) != d.Term {
			err = apperr.Invalid("term", "must equal the number of installments")
		}
	}
	if err != nil {
		return models.Plan{}, s.fail(ctx, "create", err, "Could not create the payment plan")
	}

	plan := models.Plan{
		ID:               uuid.NewString(),
		PolicyID:         d.PolicyID,
		ClientID:         d.ClientID,
		PolicyNumber:     d.PolicyNumber,
		TotalPremium:     d.TotalPremium,
		Term:             d.Term,
		FirstDueDate:     d.FirstDueDate,
		FirstInstallment: schedule[0].Amount,
		PolicyDocument:   d.PolicyDocument,
		Note:             d.Note,
		Status:           models.PlanActive,
		CreatedBy:        s.session.Actor(),
	}
	rows := make([]models.Installment, 0, len(schedule))
	for _, in := range schedule {
		rows = append(rows, models.Installment{
			ID:      uuid.NewString(),
			PlanID:  plan.ID,
			Number:  in.Number,
			Amount:  in.Amount,
			DueDate: in.DueDate,
			Status:  models.InstallmentPending,
		})
	}

	created, err := s.repo.Create(ctx, plan, rows)
	if err != nil {
		return models.Plan{}, s.fail(ctx, "create", err, "Could not create the payment plan")
	}
	log.Printf("[PLANS][CREATE][OK] plan=%s client=%s term=%d premium=%s",
		created.ID, created.ClientID, created.Term, created.TotalPremium.StringFixed(2))
	s.notify.Success(ctx, "Payment plan created")
	return created, nil
}

func (s *Service) GetPlan(ctx context.Context, id string) (models.Plan, error) {
	p, err := s.repo.GetPlan(ctx, strings.TrimSpace(id))
	if err == nil && p.Status == models.PlanDeleted {
		err = apperr.ErrNotFound
	}
	if err != nil {
		return models.Plan{}, s.fail(ctx, "get", err, "Could not load the payment plan")
	}
	return p, nil
}

func (s *Service) ListPlansByClient(ctx context.Context, clientID string, page models.Page) ([]models.Plan, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, s.fail(ctx, "list", apperr.Invalid("client_id", "required"), "Could not load the payment plans")
	}
	out, err := s.repo.ListByClient(ctx, clientID, page)
	if err != nil {
		return nil, s.fail(ctx, "list", err, "Could not load the payment plans")
	}
	return out, nil
}

func (s *Service) UpdatePlan(ctx context.Context, id string, c models.PlanChanges) (models.Plan, error) {
	if c.Empty() {
		return models.Plan{}, s.fail(ctx, "update", apperr.Invalid("plan", "nothing to update"), "Could not update the payment plan")
	}
	p, err := s.repo.Update(ctx, id, c, s.session.Actor())
	if err != nil {
		return models.Plan{}, s.fail(ctx, "update", err, "Could not update the payment plan")
	}
	s.notify.Success(ctx, "Payment plan updated")
	return p, nil
}

// DeactivatePlan keeps the plan visible but closed for new payments.
func (s *Service) DeactivatePlan(ctx context.Context, id string) (models.Plan, error) {
	p, err := s.repo.SetStatus(ctx, id, models.PlanInactive, s.session.Actor())
	if err != nil {
		return models.Plan{}, s.fail(ctx, "deactivate", err, "Could not deactivate the payment plan")
	}
	s.notify.Success(ctx, "Payment plan deactivated")
	return p, nil
}

// DeletePlan is a soft delete; the rows stay for audit.
func (s *Service) DeletePlan(ctx context.Context, id string) error {
	if _, err := s.repo.SetStatus(ctx, id, models.PlanDeleted, s.session.Actor()); err != nil {
		return s.fail(ctx, "delete", err, "Could not delete the payment plan")
	}
	s.notify.Success(ctx, "Payment plan deleted")
	return nil
}

func (s *Service) fail(ctx context.Context, op string, err error, userMsg string) error {
	log.Printf("[PLANS][%s][ERR] user=%s err=%v", strings.ToUpper(op), s.session.UserID, err)
	msg := userMsg
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		msg += ": record not found"
	case apperr.IsValidation(err):
		msg += ": " + err.Error()
	}
	s.notify.Error(ctx, msg)
	return err
}

func checkDraft(d *models.PlanDraft) error {
	d.PolicyID = strings.TrimSpace(d.PolicyID)
	d.ClientID = strings.TrimSpace(d.ClientID)
	if d.PolicyID == "" {
		return apperr.Invalid("policy_id", "required")
	}
	if d.ClientID == "" {
		return apperr.Invalid("client_id", "required")
	}
	if d.Term <= 0 {
		return apperr.Invalid("term", "must be at least 1")
	}
	if err := apperr.CheckAmount("total_premium", d.TotalPremium); err != nil {
		return err
	}
	if !d.FirstInstallment.IsZero() {
		if err := apperr.CheckAmount("first_installment", d.FirstInstallment); err != nil {
			return err
		}
	}
	if d.FirstDueDate.IsZero() {
		return apperr.Invalid("first_due_date", "required")
	}
	return nil
}
