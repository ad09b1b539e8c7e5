package handlers

import (
	"net/http"

	"brokerage_ledger/internal/ledger"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/services/statement"
)

type ledgerResp struct {
	Plan          models.Plan          `json:"plan"`
	Summary       ledger.Summary       `json:"summary"`
	Payments      []models.Payment     `json:"payments"`
	Discrepancies []ledger.Discrepancy `json:"discrepancies,omitempty"`
}

func (h *Handlers) GetLedger(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}
	lg := rec.Ledger()
	h.ok(w, http.StatusOK, ledgerResp{
		Plan:          lg.Plan,
		Summary:       lg.Summary(h.Now()),
		Payments:      lg.Payments,
		Discrepancies: lg.CheckConsistency(),
	}, "")
}

func (h *Handlers) Statement(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}
	now := h.Now()
	lg := rec.Ledger()
	f, err := statement.Build(lg, now)
	if err != nil {
		h.Logger.Printf("[STATEMENT][ERR] plan=%s err=%v", lg.Plan.ID, err)
		h.fail(w, http.StatusInternalServerError, "failed to build statement")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", statement.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+statement.FileName(lg.Plan.ID, now))
	if err := f.Write(w); err != nil {
		h.Logger.Printf("[STATEMENT][ERR] write plan=%s err=%v", lg.Plan.ID, err)
	}
}
