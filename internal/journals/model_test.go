package journals

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestFormatNumber(t *testing.T) {
	if got := FormatNumber(2025, time.March, 7); got != "JRN-2025-03-0007" {
		t.Fatalf("FormatNumber = %q", got)
	}
	if got := FormatNumber(2025, time.December, 10001); got != "JRN-2025-12-10001" {
		t.Fatalf("FormatNumber wide seq = %q", got)
	}
}

func TestValidateLinesOrder(t *testing.T) {
	// A single line trips the line-count check before anything else.
	err := ValidateLines([]LineInput{{AccountID: 1, Debit: d("10")}})
	if !errors.Is(err, ErrTooFewLines) {
		t.Fatalf("expected ErrTooFewLines, got %v", err)
	}

	// Duplicate accounts are caught before balance.
	err = ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("10")},
		{AccountID: 1, Credit: d("99")},
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}

	// Both sides set on one line.
	err = ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("10"), Credit: d("10")},
		{AccountID: 2, Credit: d("10")},
	})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for both sides, got %v", err)
	}

	// Neither side set.
	err = ValidateLines([]LineInput{
		{AccountID: 1},
		{AccountID: 2, Credit: d("10")},
	})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for empty line, got %v", err)
	}

	// Negative amounts are rejected, not treated as the other side.
	err = ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("-10")},
		{AccountID: 2, Credit: d("-10")},
	})
	if !errors.Is(err, ErrInvalidLine) {
		t.Fatalf("expected ErrInvalidLine for negative amount, got %v", err)
	}

	// Unbalanced comes last.
	err = ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("10")},
		{AccountID: 2, Credit: d("9.99")},
	})
	if !errors.Is(err, ErrUnbalanced) {
		t.Fatalf("expected ErrUnbalanced, got %v", err)
	}

	// Balance is exact, no tolerance.
	err = ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("1000000")},
		{AccountID: 2, Credit: d("1000000")},
	})
	if err != nil {
		t.Fatalf("balanced lines rejected: %v", err)
	}
}

func TestValidateLinesManyLegs(t *testing.T) {
	// One debit split across several credit accounts still balances.
	err := ValidateLines([]LineInput{
		{AccountID: 1, Debit: d("1000000")},
		{AccountID: 2, Credit: d("400000")},
		{AccountID: 3, Credit: d("350000")},
		{AccountID: 4, Credit: d("250000")},
	})
	if err != nil {
		t.Fatalf("multi-leg journal rejected: %v", err)
	}
}

func TestTotals(t *testing.T) {
	debit, credit := Totals([]LineInput{
		{AccountID: 1, Debit: d("100.50")},
		{AccountID: 2, Credit: d("100.50")},
	})
	if !debit.Equal(d("100.50")) || !credit.Equal(d("100.50")) {
		t.Fatalf("Totals = %s / %s", debit, credit)
	}
}
