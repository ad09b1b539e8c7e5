package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"
	"brokerage_ledger/internal/transport/auth"

	"github.com/shopspring/decimal"
)

type planRepo struct{ plans map[string]models.Plan }

func (p *planRepo) GetPlan(_ context.Context, id string) (models.Plan, error) {
	pl, ok := p.plans[id]
	if !ok {
		return models.Plan{}, apperr.ErrNotFound
	}
	return pl, nil
}

func (p *planRepo) ListByClient(context.Context, string, models.Page) ([]models.Plan, error) {
	return nil, nil
}

func (p *planRepo) Create(_ context.Context, pl models.Plan, _ []models.Installment) (models.Plan, error) {
	p.plans[pl.ID] = pl
	return pl, nil
}

func (p *planRepo) Update(_ context.Context, id string, _ models.PlanChanges, _ *string) (models.Plan, error) {
	return p.GetPlan(context.Background(), id)
}

func (p *planRepo) SetStatus(_ context.Context, id string, st models.PlanStatus, _ *string) (models.Plan, error) {
	pl, ok := p.plans[id]
	if !ok {
		return models.Plan{}, apperr.ErrNotFound
	}
	pl.Status = st
	p.plans[id] = pl
	return pl, nil
}

type instRepo struct{ rows []models.Installment }

func (s *instRepo) ListByPlan(_ context.Context, planID string) ([]models.Installment, error) {
	out := make([]models.Installment, 0)
	for _, in := range s.rows {
		if in.PlanID == planID {
			out = append(out, in)
		}
	}
	return out, nil
}

func (s *instRepo) SetStatus(_ context.Context, id string, st models.InstallmentStatus, _ *string) (models.Installment, error) {
	for i := range s.rows {
		if s.rows[i].ID == id {
			s.rows[i].Status = st
			return s.rows[i], nil
		}
	}
	return models.Installment{}, apperr.ErrNotFound
}

type payRepo struct{ rows []models.Payment }

func (s *payRepo) ListActiveByPlan(_ context.Context, planID string) ([]models.Payment, error) {
	out := make([]models.Payment, 0)
	for _, p := range s.rows {
		if p.PlanID == planID && p.Status == models.PaymentActive {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *payRepo) Insert(_ context.Context, p models.Payment) (models.Payment, error) {
	s.rows = append(s.rows, p)
	return p, nil
}

func (s *payRepo) Update(context.Context, string, models.PaymentUpdate) (models.Payment, error) {
	return models.Payment{}, errors.New("not used")
}

func (s *payRepo) Retire(context.Context, string, *string) error { return errors.New("not used") }

type quiet struct{}

func (quiet) Success(context.Context, string) {}
func (quiet) Warning(context.Context, string) {}
func (quiet) Error(context.Context, string)   {}

func testHandlers() (*Handlers, *instRepo, *payRepo) {
	d := decimal.RequireFromString
	plans := &planRepo{plans: map[string]models.Plan{
		"p1": {ID: "p1", PolicyID: "pol", ClientID: "cli", TotalPremium: d("200"), Term: 2, Status: models.PlanActive},
		"p2": {ID: "p2", PolicyID: "pol", ClientID: "cli", TotalPremium: d("100"), Term: 1, Status: models.PlanInactive},
	}}
	inst := &instRepo{}
	for i := 1; i <= 2; i++ {
		inst.rows = append(inst.rows, models.Installment{
			ID: fmt.Sprintf("p1-i%d", i), PlanID: "p1", Number: i, Amount: d("100"),
			DueDate: time.Date(2026, time.Month(i), 10, 0, 0, 0, 0, time.UTC), Status: models.InstallmentPending,
		})
	}
	pay := &payRepo{}
	h := &Handlers{
		Plans:        plans,
		Installments: inst,
		Payments:     pay,
		Notifier:     func(string, string) ports.Notifier { return quiet{} },
		Logger:       log.New(io.Discard, "", 0),
		Now:          func() time.Time { return time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC) },
	}
	return h, inst, pay
}

func testMux(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /plans/{id}/payments", h.RecordPayment)
	mux.HandleFunc("GET /plans/{id}/ledger", h.GetLedger)
	mux.HandleFunc("GET /plans/{id}/statement.xlsx", h.Statement)
	return mux
}

type response struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func do(t *testing.T, srv http.Handler, method, target, body string, withSession bool) (int, response, *httptest.ResponseRecorder) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if withSession {
		req = req.WithContext(auth.WithSession(req.Context(), models.Session{UserID: "u1", Role: models.RoleAdmin}))
	}
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	var out response
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s: %v", rr.Body.String(), err)
		}
	}
	return rr.Code, out, rr
}

func TestRecordPayment(t *testing.T) {
	h, inst, pay := testHandlers()
	srv := testMux(h)

	body := `{"installment_id":"p1-i1","amount":"100","date":"2026-01-09","method":"Efectivo"}`
	code, out, _ := do(t, srv, http.MethodPost, "/plans/p1/payments", body, true)
	if code != http.StatusCreated || !out.OK {
		t.Fatalf("expected 201, got %d %+v", code, out)
	}
	if inst.rows[0].Status != models.InstallmentPaid || len(pay.rows) != 1 || pay.rows[0].Method != models.MethodCash {
		t.Fatalf("unexpected state %+v %+v", inst.rows[0], pay.rows)
	}
	var data struct {
		Summary struct {
			PercentComplete int `json:"percent_complete"`
		} `json:"summary"`
	}
	_ = json.Unmarshal(out.Data, &data)
	if data.Summary.PercentComplete != 50 {
		t.Fatalf("percent complete = %d", data.Summary.PercentComplete)
	}

	if code, _, _ := do(t, srv, http.MethodPost, "/plans/p1/payments", body, true); code != http.StatusBadRequest {
		t.Fatalf("second claim of #1 should be 400, got %d", code)
	}

	mismatch := `{"installment_id":"p1-i2","amount":"80","method":"cash"}`
	code, out, _ = do(t, srv, http.MethodPost, "/plans/p1/payments", mismatch, true)
	if code != http.StatusConflict || !strings.Contains(string(out.Data), "p1-i2") {
		t.Fatalf("expected 409 with mismatch data, got %d %s", code, out.Data)
	}

	if code, _, _ := do(t, srv, http.MethodPost, "/plans/p1/payments", `{"amount":"1","extra":true}`, true); code != http.StatusBadRequest {
		t.Fatalf("unknown field should be 400, got %d", code)
	}
	if code, _, _ := do(t, srv, http.MethodPost, "/plans/p2/payments", `{"amount":"100","method":"cash"}`, true); code != http.StatusBadRequest {
		t.Fatalf("inactive plan should be 400, got %d", code)
	}
	if code, _, _ := do(t, srv, http.MethodPost, "/plans/nope/payments", `{"amount":"100","method":"cash"}`, true); code != http.StatusNotFound {
		t.Fatalf("unknown plan should be 404, got %d", code)
	}
	if code, _, _ := do(t, srv, http.MethodPost, "/plans/p1/payments", body, false); code != http.StatusUnauthorized {
		t.Fatalf("missing session should be 401, got %d", code)
	}
}

func TestGetLedgerAndStatement(t *testing.T) {
	h, _, _ := testHandlers()
	srv := testMux(h)

	code, out, _ := do(t, srv, http.MethodGet, "/plans/p1/ledger", "", true)
	if code != http.StatusOK {
		t.Fatalf("ledger: %d %+v", code, out)
	}
	var lg ledgerResp
	if err := json.Unmarshal(out.Data, &lg); err != nil {
		t.Fatalf("decode ledger: %v", err)
	}
	if lg.Plan.ID != "p1" || len(lg.Summary.Installments) != 2 || !lg.Summary.Remaining.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected ledger %+v", lg.Summary)
	}

	code, _, rr := do(t, srv, http.MethodGet, "/plans/p1/statement.xlsx", "", true)
	if code != http.StatusOK || rr.Header().Get("Content-Type") != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Fatalf("statement: %d %q", code, rr.Header().Get("Content-Type"))
	}
	if !strings.Contains(rr.Header().Get("Content-Disposition"), "plan_p1_") || rr.Body.Len() == 0 {
		t.Fatalf("unexpected statement response")
	}
}

func TestFailErr(t *testing.T) {
	h, _, _ := testHandlers()
	cases := []struct {
		err  error
		code int
	}{
		{apperr.Invalid("amount", "must be greater than zero"), http.StatusBadRequest},
		{fmt.Errorf("load: %w", apperr.ErrNotFound), http.StatusNotFound},
		{&apperr.AmountMismatch{InstallmentID: "i1"}, http.StatusConflict},
		{&apperr.PreconditionFailure{Step: "receipt upload", Err: errors.New("s3 down")}, http.StatusBadGateway},
		{&apperr.WriteFailure{Op: "insert payment", Err: errors.New("fk")}, http.StatusInternalServerError},
		{errors.New("anything"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		rr := httptest.NewRecorder()
		h.failErr(rr, c.err)
		if rr.Code != c.code {
			t.Errorf("%v: got %d, want %d", c.err, rr.Code, c.code)
		}
	}
}

func TestDateUnmarshal(t *testing.T) {
	var v struct{ D Date }
	if err := json.Unmarshal([]byte(`{"D":"2026-03-05T22:10:00-03:00"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !v.D.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %s", v.D.Time)
	}
	if err := json.Unmarshal([]byte(`{"D":"05/03/2026"}`), &v); err == nil {
		t.Fatalf("expected error for an unsupported layout")
	}
}
