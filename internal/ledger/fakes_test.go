package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"

	"github.com/shopspring/decimal"
)

var errBoom = errors.New("boom")

// memDB implements the plan, installment and payment stores over maps.
type memDB struct {
	plans        map[string]models.Plan
	installments map[string]models.Installment
	payments     map[string]models.Payment

	failSetStatus func(id string, st models.InstallmentStatus) error
	failInsert    error
	failUpdate    error
	failRetire    error
	failReload    bool
	loads         int

	statusWrites []string
}

func newMemDB() *memDB {
	return &memDB{
		plans:        map[string]models.Plan{},
		installments: map[string]models.Installment{},
		payments:     map[string]models.Payment{},
	}
}

// seedPlan adds an active plan with n installments of amount each.
func (m *memDB) seedPlan(id string, n int, amount string) models.Plan {
	amt := decimal.RequireFromString(amount)
	p := models.Plan{
		ID:           id,
		PolicyID:     "pol-" + id,
		ClientID:     "cli-" + id,
		TotalPremium: amt.Mul(decimal.NewFromInt(int64(n))),
		Term:         n,
		FirstDueDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		Status:       models.PlanActive,
	}
	m.plans[id] = p
	for i := 1; i <= n; i++ {
		in := models.Installment{
			ID:      fmt.Sprintf("%s-i%d", id, i),
			PlanID:  id,
			Number:  i,
			Amount:  amt,
			DueDate: p.FirstDueDate.AddDate(0, i-1, 0),
			Status:  models.InstallmentPending,
		}
		m.installments[in.ID] = in
	}
	return p
}

func (m *memDB) GetPlan(ctx context.Context, id string) (models.Plan, error) {
	if m.failReload && m.loads > 0 {
		return models.Plan{}, errBoom
	}
	m.loads++
	p, ok := m.plans[id]
	if !ok {
		return models.Plan{}, apperr.ErrNotFound
	}
	return p, nil
}

func (m *memDB) ListByPlan(ctx context.Context, planID string) ([]models.Installment, error) {
	out := make([]models.Installment, 0)
	for _, in := range m.installments {
		if in.PlanID == planID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memDB) SetStatus(ctx context.Context, id string, st models.InstallmentStatus, by *string) (models.Installment, error) {
	if m.failSetStatus != nil {
		if err := m.failSetStatus(id, st); err != nil {
			return models.Installment{}, &apperr.WriteFailure{Op: "set status", Err: err}
		}
	}
	in, ok := m.installments[id]
	if !ok {
		return models.Installment{}, apperr.ErrNotFound
	}
	in.Status = st
	in.ModifiedBy = by
	m.installments[id] = in
	m.statusWrites = append(m.statusWrites, id+"="+string(st))
	return in, nil
}

func (m *memDB) ListActiveByPlan(ctx context.Context, planID string) ([]models.Payment, error) {
	out := make([]models.Payment, 0)
	for _, p := range m.payments {
		if p.PlanID == planID && p.Status == models.PaymentActive {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDB) Insert(ctx context.Context, p models.Payment) (models.Payment, error) {
	if m.failInsert != nil {
		return models.Payment{}, m.failInsert
	}
	m.payments[p.ID] = p
	return p, nil
}

func (m *memDB) Update(ctx context.Context, id string, u models.PaymentUpdate) (models.Payment, error) {
	if m.failUpdate != nil {
		return models.Payment{}, m.failUpdate
	}
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentActive {
		return models.Payment{}, apperr.ErrNotFound
	}
	if u.Amount != nil {
		p.Amount = *u.Amount
	}
	if u.Date != nil {
		p.Date = *u.Date
	}
	if u.Method != nil {
		p.Method = *u.Method
	}
	if u.Note != nil {
		p.Note = u.Note
	}
	if u.ReceiptKey != nil {
		p.ReceiptKey, p.ReceiptURL = u.ReceiptKey, u.ReceiptURL
	}
	if u.SetInstallment {
		p.InstallmentID = u.InstallmentID
	}
	p.ModifiedBy = u.ModifiedBy
	m.payments[id] = p
	return p, nil
}

func (m *memDB) Retire(ctx context.Context, id string, by *string) error {
	if m.failRetire != nil {
		return m.failRetire
	}
	p, ok := m.payments[id]
	if !ok || p.Status != models.PaymentActive {
		return apperr.ErrNotFound
	}
	p.Status = models.PaymentRetired
	p.ModifiedBy = by
	m.payments[id] = p
	return nil
}

// seedPayment stores an active payment linked to installmentID ("" for none)
// and marks the installment paid.
func (m *memDB) seedPayment(id, planID, installmentID, amount string) models.Payment {
	p := models.Payment{
		ID:     id,
		PlanID: planID,
		Amount: decimal.RequireFromString(amount),
		Date:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC),
		Method: models.MethodCash,
		Status: models.PaymentActive,
	}
	if installmentID != "" {
		link := installmentID
		p.InstallmentID = &link
		in := m.installments[installmentID]
		in.Status = models.InstallmentPaid
		m.installments[installmentID] = in
	}
	m.payments[id] = p
	return p
}

type memReceipts struct {
	objects    map[string][]byte
	failUpload error
	deleted    []string
}

func newMemReceipts() *memReceipts { return &memReceipts{objects: map[string][]byte{}} }

func (r *memReceipts) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	if r.failUpload != nil {
		return r.failUpload
	}
	r.objects[key] = body
	return nil
}

func (r *memReceipts) PublicURL(key string) string { return "https://files.test/receipts/" + key }

func (r *memReceipts) Delete(ctx context.Context, key string) error {
	delete(r.objects, key)
	r.deleted = append(r.deleted, key)
	return nil
}

func (r *memReceipts) Open(ctx context.Context, key string) (io.ReadCloser, ports.Meta, error) {
	b, ok := r.objects[key]
	if !ok {
		return nil, ports.Meta{}, apperr.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(string(b))), ports.Meta{Key: key, Size: int64(len(b))}, nil
}

type recorder struct {
	success, warning, errors []string
}

func (r *recorder) Success(_ context.Context, msg string) { r.success = append(r.success, msg) }
func (r *recorder) Warning(_ context.Context, msg string) { r.warning = append(r.warning, msg) }
func (r *recorder) Error(_ context.Context, msg string)   { r.errors = append(r.errors, msg) }

func (r *recorder) failures() int { return len(r.errors) + len(r.warning) }

type fixture struct {
	db       *memDB
	receipts *memReceipts
	notes    *recorder
	rec      *Reconciler
}

var fixedNow = time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

func newFixture() *fixture {
	f := &fixture{db: newMemDB(), receipts: newMemReceipts(), notes: &recorder{}}
	keys := 0
	f.rec = New(Deps{
		Plans:        f.db,
		Installments: f.db,
		Payments:     f.db,
		Receipts:     f.receipts,
		Notify:       f.notes,
		NewReceiptKey: func(name string) string {
			keys++
			return fmt.Sprintf("comprobantes/key-%d-%s", keys, name)
		},
		Now: func() time.Time { return fixedNow },
	}, models.Session{UserID: "user-1", Role: models.RoleAdmin})
	return f
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }
