package plans

import (
	"testing"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func sum(s []models.InstallmentDraft) decimal.Decimal {
	total := decimal.Zero
	for _, in := range s {
		total = total.Add(in.Amount)
	}
	return total
}

func TestBuildSchedule_evenSplit(t *testing.T) {
	s, err := BuildSchedule(models.PlanDraft{TotalPremium: dec("300"), Term: 3, FirstDueDate: day(2026, 1, 15)})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(s) != 3 {
		t.Fatalf("expected 3 installments, got %d", len(s))
	}
	for i, in := range s {
		if in.Number != i+1 || !in.Amount.Equal(dec("100")) {
			t.Fatalf("installment %d = %+v", i, in)
		}
	}
	if !s[2].DueDate.Equal(day(2026, 3, 15)) {
		t.Fatalf("third due date = %s", s[2].DueDate)
	}
}

func TestBuildSchedule_residueOnLast(t *testing.T) {
	s, err := BuildSchedule(models.PlanDraft{
		TotalPremium: dec("1000"), Term: 4, FirstDueDate: day(2026, 1, 31), FirstInstallment: dec("250.01"),
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !sum(s).Equal(dec("1000")) {
		t.Fatalf("schedule adds up to %s", sum(s))
	}
	if !s[0].Amount.Equal(dec("250.01")) || !s[1].Amount.Equal(dec("249.99")) || !s[3].Amount.Equal(dec("250.01")) {
		t.Fatalf("unexpected amounts %s %s %s %s", s[0].Amount, s[1].Amount, s[2].Amount, s[3].Amount)
	}
	// Jan 31 clamps to the end of shorter months
	if !s[1].DueDate.Equal(day(2026, 2, 28)) || !s[2].DueDate.Equal(day(2026, 3, 31)) || !s[3].DueDate.Equal(day(2026, 4, 30)) {
		t.Fatalf("unexpected due dates %s %s %s", s[1].DueDate, s[2].DueDate, s[3].DueDate)
	}
}

func TestBuildSchedule_single(t *testing.T) {
	s, err := BuildSchedule(models.PlanDraft{TotalPremium: dec("99.90"), Term: 1, FirstDueDate: day(2026, 5, 1)})
	if err != nil || len(s) != 1 || !s[0].Amount.Equal(dec("99.90")) {
		t.Fatalf("unexpected %+v %v", s, err)
	}
	if _, err := BuildSchedule(models.PlanDraft{TotalPremium: dec("99.90"), Term: 1, FirstDueDate: day(2026, 5, 1), FirstInstallment: dec("50")}); !apperr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestBuildSchedule_rejects(t *testing.T) {
	base := models.PlanDraft{TotalPremium: dec("100"), Term: 2, FirstDueDate: day(2026, 1, 1)}
	cases := map[string]func(d *models.PlanDraft){
		"term":      func(d *models.PlanDraft) { d.Term = 0 },
		"premium":   func(d *models.PlanDraft) { d.TotalPremium = dec("0") },
		"due date":  func(d *models.PlanDraft) { d.FirstDueDate = time.Time{} },
		"first big": func(d *models.PlanDraft) { d.FirstInstallment = dec("101") },
	}
	for name, mut := range cases {
		d := base
		mut(&d)
		if _, err := BuildSchedule(d); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestCheckSchedule(t *testing.T) {
	ok := []models.InstallmentDraft{
		{Number: 2, Amount: dec("60"), DueDate: day(2026, 2, 1)},
		{Number: 1, Amount: dec("40"), DueDate: day(2026, 1, 1)},
	}
	if err := CheckSchedule(dec("100"), ok); err != nil {
		t.Fatalf("unexpected %v", err)
	}

	cases := map[string][]models.InstallmentDraft{
		"empty":     {},
		"gap":       {{Number: 1, Amount: dec("50"), DueDate: day(2026, 1, 1)}, {Number: 3, Amount: dec("50"), DueDate: day(2026, 3, 1)}},
		"repeat":    {{Number: 1, Amount: dec("50"), DueDate: day(2026, 1, 1)}, {Number: 1, Amount: dec("50"), DueDate: day(2026, 3, 1)}},
		"sum":       {{Number: 1, Amount: dec("50"), DueDate: day(2026, 1, 1)}, {Number: 2, Amount: dec("49"), DueDate: day(2026, 2, 1)}},
		"zero":      {{Number: 1, Amount: dec("100"), DueDate: day(2026, 1, 1)}, {Number: 2, Amount: dec("0"), DueDate: day(2026, 2, 1)}},
		"no due on": {{Number: 1, Amount: dec("100")}},
		"sub cent":  {{Number: 1, Amount: dec("50.005"), DueDate: day(2026, 1, 1)}, {Number: 2, Amount: dec("49.995"), DueDate: day(2026, 2, 1)}},
	}
	for name, s := range cases {
		if err := CheckSchedule(dec("100"), s); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}
