// Package statement renders a plan ledger as an XLSX workbook.
package statement

import (
	"fmt"
	"io"
	"time"

	"brokerage_ledger/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	SheetSummary    = "Summary"
	SheetSchedule   = "Installments"
	SheetPayments   = "Payments"
	dateLayout      = "2006-01-02"
	moneyNumFmtID   = 4 // #,##0.00
	percentNumFmtID = 9 // 0%
)

func FileName(planID string, now time.Time) string {
	return fmt.Sprintf("plan_%s_%s.xlsx", planID, now.Format("20060102_150405"))
}

// Write renders the summary, the installment schedule and the active
// payments of lg on three sheets.
func Write(w io.Writer, lg *ledger.Ledger, now time.Time) error {
	f, err := Build(lg, now)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}

func Build(lg *ledger.Ledger, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(0), SheetSummary); err != nil {
		f.Close()
		return nil, err
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: moneyNumFmtID})
	if err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	s := lg.Summary(now)
	w := &sheetWriter{f: f, money: money, bold: bold}

	w.sheet = SheetSummary
	w.row("Plan", lg.Plan.ID)
	w.row("Policy", lg.Plan.PolicyID)
	if lg.Plan.PolicyNumber != nil {
		w.row("Policy number", *lg.Plan.PolicyNumber)
	}
	w.row("Client", lg.Plan.ClientID)
	w.row("Status", string(lg.Plan.Status))
	w.row("Term", lg.Plan.Term)
	w.moneyRow("Total premium", s.TotalPremium)
	w.moneyRow("Total paid", s.TotalPaid)
	w.moneyRow("Remaining", s.Remaining)
	w.moneyRow("Overdue", s.OverdueAmount)
	w.row("Percent complete", float64(s.PercentComplete)/100)
	if err := f.SetCellStyle(SheetSummary, w.cell(2, w.line), w.cell(2, w.line), w.pct()); err != nil {
		w.err = err
	}
	w.row("Payments", s.PaymentCount)
	w.row("Generated at", now.Format(time.RFC3339))
	_ = f.SetColWidth(SheetSummary, "A", "A", 20)
	_ = f.SetColWidth(SheetSummary, "B", "B", 40)

	if _, err := f.NewSheet(SheetSchedule); err != nil {
		f.Close()
		return nil, err
	}
	w.begin(SheetSchedule, "#", "Due date", "Amount", "Status", "Payment")
	for _, in := range s.Installments {
		pay := ""
		if in.PaymentID != nil {
			pay = *in.PaymentID
		}
		w.row(in.Number, in.DueDate.Format(dateLayout), in.Amount.InexactFloat64(), string(in.Display), pay)
		w.styleMoney(3)
	}

	if _, err := f.NewSheet(SheetPayments); err != nil {
		f.Close()
		return nil, err
	}
	w.begin(SheetPayments, "Date", "Amount", "Method", "Installment", "Receipt", "Note", "Payment")
	numbers := make(map[string]int, len(lg.Installments))
	for _, in := range lg.Installments {
		numbers[in.ID] = in.Number
	}
	for _, p := range lg.Payments {
		inst := ""
		if n, ok := numbers[p.Link()]; ok {
			inst = fmt.Sprintf("#%d", n)
		}
		receipt, note := "", ""
		if p.ReceiptURL != nil {
			receipt = *p.ReceiptURL
		}
		if p.Note != nil {
			note = *p.Note
		}
		w.row(p.Date.Format(dateLayout), p.Amount.InexactFloat64(), string(p.Method), inst, receipt, note, p.ID)
		w.styleMoney(2)
	}

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	line  int
	money int
	bold  int
	err   error
}

func (w *sheetWriter) begin(sheet string, headers ...string) {
	w.sheet, w.line = sheet, 0
	vals := make([]any, len(headers))
	for i, h := range headers {
		vals[i] = h
	}
	w.row(vals...)
	if w.err == nil {
		w.err = w.f.SetCellStyle(sheet, w.cell(1, 1), w.cell(len(headers), 1), w.bold)
	}
	if w.err == nil {
		w.err = w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}
}

func (w *sheetWriter) row(vals ...any) {
	if w.err != nil {
		return
	}
	w.line++
	w.err = w.f.SetSheetRow(w.sheet, w.cell(1, w.line), &vals)
}

func (w *sheetWriter) moneyRow(label string, v decimal.Decimal) {
	w.row(label, v.InexactFloat64())
	w.styleMoney(2)
}

func (w *sheetWriter) styleMoney(col int) {
	if w.err != nil {
		return
	}
	c := w.cell(col, w.line)
	w.err = w.f.SetCellStyle(w.sheet, c, c, w.money)
}

func (w *sheetWriter) pct() int {
	id, err := w.f.NewStyle(&excelize.Style{NumFmt: percentNumFmtID})
	if err != nil {
		w.err = err
	}
	return id
}

func (w *sheetWriter) cell(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil && w.err == nil {
		w.err = err
	}
	return name
}
