package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"brokerage_ledger/internal/adapters/receipts"
	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/config"
	"brokerage_ledger/internal/config/connections/mongo"
	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/config/connections/redis"
	"brokerage_ledger/internal/config/connections/s3"
	"brokerage_ledger/internal/ledger"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"
	"brokerage_ledger/internal/repository/database"
	importitems "brokerage_ledger/internal/repository/imports"
	"brokerage_ledger/internal/repository/notifications"
	"brokerage_ledger/internal/services/importer/processors"
	"brokerage_ledger/internal/services/plans"
	"brokerage_ledger/internal/transport/auth"
)

type Handlers struct {
	Postgres *postgres.Postgres
	Mongo    *mongo.Mongo
	S3       *s3.S3
	Redis    *redis.Redis
	HTTP     *http.Client

	Plans        plans.Repository
	Installments ports.InstallmentStore
	Payments     ports.PaymentStore
	Receipts     ports.ReceiptStore

	MaxReceiptBytes int64
	Registry        map[string]ports.Processor

	// Notifier builds the message sink of a session; nil stores nothing.
	Notifier func(userID, source string) ports.Notifier

	Logger *log.Logger
	Now    func() time.Time
}

func New(cfg *config.Config) *Handlers {
	plansRepo := database.NewPlansRepo(cfg.Postgres)
	installments := database.NewInstallmentsRepo(cfg.Postgres)
	payments := database.NewPaymentsRepo(cfg.Postgres)
	store := receipts.NewStore(cfg.S3.Client, cfg.S3.ReceiptsBucket, cfg.ReceiptPublicBase, cfg.ReceiptRetry)

	h := &Handlers{
		Postgres: cfg.Postgres,
		Mongo:    cfg.Mongo,
		S3:       cfg.S3,
		Redis:    cfg.Redis,
		HTTP:     &http.Client{Timeout: 2 * time.Minute},

		Plans:        plansRepo,
		Installments: installments,
		Payments:     payments,
		Receipts:     store,

		MaxReceiptBytes: cfg.ReceiptMaxBytes,
		Notifier: func(userID, source string) ports.Notifier {
			return notifications.NewSink(cfg.Mongo, userID, source)
		},
		Logger: log.Default(),
		Now:    time.Now,
	}

	h.Registry = processors.Registry(&processors.PaymentsProcessor{
		Deps:  h.ledgerDeps(h.Notifier("", "import")),
		Items: importitems.MongoItemLog{MG: cfg.Mongo},
	})
	return h
}

type envelope struct {
	OK      bool   `json:"ok"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handlers) JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handlers) ok(w http.ResponseWriter, code int, data any, msg string) {
	h.JSON(w, code, envelope{OK: true, Data: data, Message: msg})
}

func (h *Handlers) fail(w http.ResponseWriter, code int, msg string) {
	h.JSON(w, code, envelope{OK: false, Message: msg})
}

// failErr maps the apperr kinds onto HTTP statuses.
func (h *Handlers) failErr(w http.ResponseWriter, err error) {
	var mm *apperr.AmountMismatch
	switch {
	case errors.As(err, &mm):
		h.JSON(w, http.StatusConflict, envelope{
			OK:      false,
			Message: mm.Error(),
			Data: map[string]any{
				"installment_id":  mm.InstallmentID,
				"expected_amount": mm.Expected,
				"actual_amount":   mm.Actual,
				"confirm_with":    "confirm_amount_mismatch",
			},
		})
	case errors.Is(err, apperr.ErrNotFound):
		h.fail(w, http.StatusNotFound, "not found")
	case apperr.IsValidation(err):
		h.fail(w, http.StatusBadRequest, err.Error())
	case apperr.IsPrecondition(err):
		h.fail(w, http.StatusBadGateway, err.Error())
	case apperr.IsWrite(err):
		h.fail(w, http.StatusInternalServerError, "the change was rejected by the database")
	default:
		h.fail(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (models.Session, bool) {
	s, err := auth.SessionFrom(r.Context())
	if err != nil {
		h.fail(w, http.StatusUnauthorized, err.Error())
		return models.Session{}, false
	}
	return s, true
}

func (h *Handlers) notifier(userID, source string) ports.Notifier {
	if h.Notifier == nil {
		return notifications.NewSink(nil, userID, source)
	}
	return h.Notifier(userID, source)
}

func (h *Handlers) ledgerDeps(n ports.Notifier) ledger.Deps {
	return ledger.Deps{
		Plans:           h.Plans,
		Installments:    h.Installments,
		Payments:        h.Payments,
		Receipts:        h.Receipts,
		Notify:          n,
		MaxReceiptBytes: h.MaxReceiptBytes,
		Now:             h.Now,
	}
}

// reconciler loads the plan of the request into a fresh reconciler bound to
// the caller's session.
func (h *Handlers) reconciler(w http.ResponseWriter, r *http.Request) (*ledger.Reconciler, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	rec := ledger.New(h.ledgerDeps(h.notifier(s.UserID, "ledger")), s)
	if _, err := rec.LoadLedger(r.Context(), r.PathValue("id")); err != nil {
		h.failErr(w, err)
		return nil, false
	}
	return rec, true
}

func (h *Handlers) planService(w http.ResponseWriter, r *http.Request) (*plans.Service, bool) {
	s, ok := h.session(w, r)
	if !ok {
		return nil, false
	}
	return plans.NewService(h.Plans, h.notifier(s.UserID, "plans"), s), true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Invalid("body", "bad JSON: "+err.Error())
	}
	return nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// Date is a calendar day on the wire: "2006-01-02".
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := parseDay(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

func parseDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, apperr.Invalid("date", "expected YYYY-MM-DD, got "+s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}
