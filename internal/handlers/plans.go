package handlers

import (
	"net/http"
	"strconv"

	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

type installmentReq struct {
	Number  int             `json:"number"`
	Amount  decimal.Decimal `json:"amount"`
	DueDate Date            `json:"due_date"`
}

type createPlanReq struct {
	PolicyID         string           `json:"policy_id"`
	ClientID         string           `json:"client_id"`
	PolicyNumber     *string          `json:"policy_number"`
	TotalPremium     decimal.Decimal  `json:"total_premium"`
	Term             int              `json:"term"`
	FirstDueDate     Date             `json:"first_due_date"`
	FirstInstallment decimal.Decimal  `json:"first_installment"`
	PolicyDocument   *string          `json:"policy_document"`
	Note             *string          `json:"note"`
	Installments     []installmentReq `json:"installments"`
}

type updatePlanReq struct {
	PolicyNumber   *string `json:"policy_number"`
	PolicyDocument *string `json:"policy_document"`
	Note           *string `json:"note"`
}

func (h *Handlers) CreatePlan(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	var req createPlanReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.failErr(w, err)
		return
	}

	var schedule []models.InstallmentDraft
	if req.Installments != nil {
		schedule = make([]models.InstallmentDraft, 0, len(req.Installments))
		for _, in := range req.Installments {
			schedule = append(schedule, models.InstallmentDraft{Number: in.Number, Amount: in.Amount, DueDate: in.DueDate.Time})
		}
	}

	p, err := svc.CreatePlan(r.Context(), models.PlanDraft{
		PolicyID:         req.PolicyID,
		ClientID:         req.ClientID,
		PolicyNumber:     req.PolicyNumber,
		TotalPremium:     req.TotalPremium,
		Term:             req.Term,
		FirstDueDate:     req.FirstDueDate.Time,
		FirstInstallment: req.FirstInstallment,
		PolicyDocument:   req.PolicyDocument,
		Note:             req.Note,
	}, schedule)
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusCreated, p, "Payment plan created")
}

func (h *Handlers) GetPlan(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	p, err := svc.GetPlan(r.Context(), r.PathValue("id"))
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, p, "")
}

func (h *Handlers) ListClientPlans(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	out, err := svc.ListPlansByClient(r.Context(), r.PathValue("id"), models.Page{Limit: limit, Offset: offset})
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, out, "")
}

func (h *Handlers) UpdatePlan(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	var req updatePlanReq
	if err := decodeJSON(w, r, &req); err != nil {
		h.failErr(w, err)
		return
	}
	p, err := svc.UpdatePlan(r.Context(), r.PathValue("id"), models.PlanChanges{
		PolicyNumber:   req.PolicyNumber,
		PolicyDocument: req.PolicyDocument,
		Note:           req.Note,
	})
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, p, "Payment plan updated")
}

func (h *Handlers) DeactivatePlan(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	p, err := svc.DeactivatePlan(r.Context(), r.PathValue("id"))
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, p, "Payment plan deactivated")
}

func (h *Handlers) DeletePlan(w http.ResponseWriter, r *http.Request) {
	svc, ok := h.planService(w, r)
	if !ok {
		return
	}
	if err := svc.DeletePlan(r.Context(), r.PathValue("id")); err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, nil, "Payment plan deleted")
}
