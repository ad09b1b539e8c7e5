package database

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// money parses a numeric column selected as text. Rows that do not hold a
// valid amount are rejected instead of silently becoming zero.
func money(col, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("column %s: bad amount %q: %w", col, raw, err)
	}
	return d, nil
}

func amountArg(d decimal.Decimal) string {
	return d.StringFixed(2)
}
