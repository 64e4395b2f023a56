package budgets

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func evenMonthly(amount string) map[time.Month]decimal.Decimal {
	out := make(map[time.Month]decimal.Decimal, 12)
	for m := time.January; m <= time.December; m++ {
		out[m] = d(amount)
	}
	return out
}

func TestDistributeMonthlyEvenSplit(t *testing.T) {
	line := BudgetLine{AccountID: 1, Annual: d("120000000")}
	monthly := DistributeMonthly(line)
	require.Len(t, monthly, 12)
	for m := time.January; m <= time.December; m++ {
		assert.True(t, monthly[m].Equal(d("10000000")), "month %s = %s", m, monthly[m])
	}
}

func TestDistributeMonthlyRemainderGoesToDecember(t *testing.T) {
	// 100 / 12 = 8.33 truncated; December absorbs the remainder.
	line := BudgetLine{AccountID: 1, Annual: d("100")}
	monthly := DistributeMonthly(line)
	require.Len(t, monthly, 12)
	assert.True(t, monthly[time.January].Equal(d("8.33")))
	assert.True(t, monthly[time.November].Equal(d("8.33")))
	assert.True(t, monthly[time.December].Equal(d("8.37")))

	var sum decimal.Decimal
	for _, amount := range monthly {
		sum = sum.Add(amount)
	}
	assert.True(t, sum.Equal(line.Annual), "derived map must sum exactly: %s", sum)
}

func TestDistributeMonthlyKeepsExplicitMap(t *testing.T) {
	explicit := evenMonthly("5")
	line := BudgetLine{AccountID: 1, Annual: d("60"), Monthly: explicit}
	monthly := DistributeMonthly(line)
	assert.True(t, monthly[time.June].Equal(d("5")))
}

func TestValidateActivationTolerance(t *testing.T) {
	// Sums to 119,999,998: off by 2, outside tolerance.
	short := evenMonthly("10000000")
	short[time.December] = d("9999998")
	b := Budget{Lines: []BudgetLine{{AccountID: 1, Annual: d("120000000"), Monthly: short}}}
	if err := ValidateActivation(b); !errors.Is(err, ErrMonthlyMismatch) {
		t.Fatalf("expected ErrMonthlyMismatch for shortfall, got %v", err)
	}

	// Sums to 120,000,000.01: over by 0.01, which also fails. The tolerance
	// is absolute, not directional.
	over := evenMonthly("10000000")
	over[time.December] = d("10000000.01")
	b = Budget{Lines: []BudgetLine{{AccountID: 1, Annual: d("120000000"), Monthly: over}}}
	if err := ValidateActivation(b); !errors.Is(err, ErrMonthlyMismatch) {
		t.Fatalf("expected ErrMonthlyMismatch for overage, got %v", err)
	}

	// A sub-cent deviation passes.
	over[time.December] = d("10000000.005")
	if err := ValidateActivation(b); err != nil {
		t.Fatalf("sub-tolerance deviation should pass: %v", err)
	}

	// Lines without a map never block activation.
	b = Budget{Lines: []BudgetLine{{AccountID: 1, Annual: d("120000000")}}}
	if err := ValidateActivation(b); err != nil {
		t.Fatalf("derived distribution should pass: %v", err)
	}
}

func TestValidateLinesRejectsPartialMonthlyMap(t *testing.T) {
	partial := map[time.Month]decimal.Decimal{time.January: d("10")}
	err := validateLines([]LineInput{{AccountID: 1, Annual: d("120"), Monthly: partial}})
	if err == nil {
		t.Fatalf("expected rejection of partial monthly map")
	}
}

func TestValidateLinesRejectsDuplicateAccounts(t *testing.T) {
	err := validateLines([]LineInput{
		{AccountID: 1, Annual: d("10")},
		{AccountID: 1, Annual: d("20")},
	})
	if !errors.Is(err, ErrDuplicateAccount) {
		t.Fatalf("expected ErrDuplicateAccount, got %v", err)
	}
}
