package handlers

import (
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/ledger"
	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

type paymentReq struct {
	InstallmentID         *string          `json:"installment_id"`
	Amount                *decimal.Decimal `json:"amount"`
	Date                  *Date            `json:"date"`
	Method                *string          `json:"method"`
	Note                  *string          `json:"note"`
	ConfirmAmountMismatch bool             `json:"confirm_amount_mismatch"`

	receipt *models.ReceiptFile
}

// readPayment accepts JSON or multipart/form-data; only multipart can carry
// a receipt file (field "receipt").
func (h *Handlers) readPayment(w http.ResponseWriter, r *http.Request) (paymentReq, error) {
	var req paymentReq
	if !isMultipart(r) {
		return req, decodeJSON(w, r, &req)
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.MaxReceiptBytes+(1<<20))
	if err := r.ParseMultipartForm(h.MaxReceiptBytes + (1 << 20)); err != nil {
		return req, apperr.Invalid("body", "bad multipart: "+err.Error())
	}
	form := r.MultipartForm.Value
	field := func(k string) (*string, bool) {
		vs, ok := form[k]
		if !ok || len(vs) == 0 {
			return nil, false
		}
		v := strings.TrimSpace(vs[0])
		return &v, true
	}

	if v, ok := field("installment_id"); ok {
		req.InstallmentID = v
	}
	if v, ok := field("amount"); ok && *v != "" {
		d, err := decimal.NewFromString(*v)
		if err != nil {
			return req, apperr.Invalid("amount", "not a number: "+*v)
		}
		req.Amount = &d
	}
	if v, ok := field("date"); ok && *v != "" {
		t, err := parseDay(*v)
		if err != nil {
			return req, err
		}
		req.Date = &Date{t}
	}
	if v, ok := field("method"); ok && *v != "" {
		req.Method = v
	}
	if v, ok := field("note"); ok {
		req.Note = v
	}
	if v, ok := field("confirm_amount_mismatch"); ok {
		req.ConfirmAmountMismatch, _ = strconv.ParseBool(*v)
	}

	f, fh, err := r.FormFile("receipt")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return req, apperr.Invalid("receipt", err.Error())
	}
	defer f.Close()
	body, err := io.ReadAll(f)
	if err != nil {
		return req, apperr.Invalid("receipt", err.Error())
	}
	req.receipt = &models.ReceiptFile{
		Name:        path.Base(fh.Filename),
		ContentType: fh.Header.Get("Content-Type"),
		Body:        body,
	}
	return req, nil
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	req, err := h.readPayment(w, r)
	if err != nil {
		h.failErr(w, err)
		return
	}
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	d := ledger.PaymentDraft{
		PlanID:                r.PathValue("id"),
		Note:                  req.Note,
		Receipt:               req.receipt,
		ConfirmAmountMismatch: req.ConfirmAmountMismatch,
	}
	if req.InstallmentID != nil {
		d.InstallmentID = *req.InstallmentID
	}
	if req.Amount != nil {
		d.Amount = *req.Amount
	}
	if req.Date != nil {
		d.Date = req.Date.Time
	}
	if req.Method != nil {
		d.Method = models.PaymentMethod(*req.Method)
	}

	p, err := rec.RecordPayment(r.Context(), d)
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusCreated, map[string]any{
		"payment": p,
		"summary": rec.Ledger().Summary(h.Now()),
	}, "Payment recorded")
}

func (h *Handlers) AmendPayment(w http.ResponseWriter, r *http.Request) {
	req, err := h.readPayment(w, r)
	if err != nil {
		h.failErr(w, err)
		return
	}
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}

	c := ledger.PaymentChanges{
		InstallmentID:         req.InstallmentID,
		Amount:                req.Amount,
		Note:                  req.Note,
		Receipt:               req.receipt,
		ConfirmAmountMismatch: req.ConfirmAmountMismatch,
	}
	if req.Date != nil {
		t := req.Date.Time
		c.Date = &t
	}
	if req.Method != nil {
		m := models.PaymentMethod(*req.Method)
		c.Method = &m
	}

	p, err := rec.AmendPayment(r.Context(), r.PathValue("paymentID"), c)
	if err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]any{
		"payment": p,
		"summary": rec.Ledger().Summary(h.Now()),
	}, "Payment updated")
}

func (h *Handlers) RetirePayment(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}
	if err := rec.RetirePayment(r.Context(), r.PathValue("paymentID")); err != nil {
		h.failErr(w, err)
		return
	}
	h.ok(w, http.StatusOK, map[string]any{
		"summary": rec.Ledger().Summary(h.Now()),
	}, "Payment deleted")
}

// Receipt streams the stored receipt of an active payment.
func (h *Handlers) Receipt(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.reconciler(w, r)
	if !ok {
		return
	}
	p, found := rec.Ledger().Payment(r.PathValue("paymentID"))
	if !found || p.ReceiptKey == nil {
		h.fail(w, http.StatusNotFound, "payment has no receipt")
		return
	}
	body, meta, err := h.Receipts.Open(r.Context(), *p.ReceiptKey)
	if err != nil {
		h.Logger.Printf("[RECEIPTS][GET][ERR] payment=%s key=%q err=%v", p.ID, *p.ReceiptKey, err)
		if errors.Is(err, apperr.ErrNotFound) {
			h.fail(w, http.StatusNotFound, "receipt file is missing from storage")
			return
		}
		h.fail(w, http.StatusBadGateway, "receipt is not available")
		return
	}
	defer body.Close()

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	if meta.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	}
	w.Header().Set("Content-Disposition", "inline; filename="+path.Base(*p.ReceiptKey))
	if _, err := io.Copy(w, body); err != nil {
		h.Logger.Printf("[RECEIPTS][GET][ERR] copy payment=%s: %v", p.ID, err)
	}
}
