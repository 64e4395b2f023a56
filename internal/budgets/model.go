package budgets

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetStatus enumerates the budget lifecycle. Draft budgets may carry
// unbalanced monthly maps; activation enforces the tolerance.
type BudgetStatus string

const (
	StatusDraft  BudgetStatus = "DRAFT"
	StatusActive BudgetStatus = "ACTIVE"
)

// Budget groups per-account lines for one fiscal year.
type Budget struct {
	ID         int64
	TenantID   uuid.UUID
	FiscalYear int
	Name       string
	Status     BudgetStatus
	CreatedBy  int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Lines      []BudgetLine
}

// BudgetLine holds one account's annual amount and an optional 12-entry
// monthly distribution. A nil Monthly map means "distribute evenly".
type BudgetLine struct {
	ID        int64
	BudgetID  int64
	AccountID int64
	Annual    decimal.Decimal
	Monthly   map[time.Month]decimal.Decimal
}

var (
	// ErrBudgetNotFound indicates a missing budget.
	ErrBudgetNotFound = errors.New("budgets: budget not found")
	// ErrAlreadyActive indicates activation of an active budget.
	ErrAlreadyActive = errors.New("budgets: budget already active")
	// ErrBudgetActive indicates mutation of an active budget.
	ErrBudgetActive = errors.New("budgets: active budget is immutable")
	// ErrMonthlyMismatch indicates a monthly map outside the activation tolerance.
	ErrMonthlyMismatch = errors.New("budgets: monthly distribution does not sum to annual amount")
	// ErrDuplicateAccount indicates an account used on more than one line.
	ErrDuplicateAccount = errors.New("budgets: duplicate account across budget lines")
	// ErrDuplicateYear indicates a second budget for the same fiscal year.
	ErrDuplicateYear = errors.New("budgets: budget already exists for fiscal year")
)

// activationTolerance is the absolute allowance between a line's annual
// amount and the sum of its monthly map. Applies in both directions.
var activationTolerance = decimal.RequireFromString("0.01")

// LineInput describes a budget line for create/update requests.
type LineInput struct {
	AccountID int64
	Annual    decimal.Decimal
	Monthly   map[time.Month]decimal.Decimal
}

// CreateInput groups fields required to create a draft budget.
type CreateInput struct {
	TenantID   uuid.UUID
	ActorID    int64
	FiscalYear int
	Name       string
	Lines      []LineInput
}

// Validate checks structural requirements. Monthly balance is deliberately
// not checked here; drafts may be saved unbalanced.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("budgets: tenant required")
	}
	if in.FiscalYear < 1900 || in.FiscalYear > 9999 {
		return errors.New("budgets: fiscal year out of range")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("budgets: name required")
	}
	return validateLines(in.Lines)
}

func validateLines(lines []LineInput) error {
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if line.AccountID == 0 {
			return errors.New("budgets: line missing account")
		}
		if _, dup := seen[line.AccountID]; dup {
			return ErrDuplicateAccount
		}
		seen[line.AccountID] = struct{}{}
		if line.Annual.IsNegative() {
			return errors.New("budgets: annual amount must not be negative")
		}
		if line.Monthly != nil {
			if len(line.Monthly) != 12 {
				return errors.New("budgets: monthly map must carry all 12 months")
			}
			for m := time.January; m <= time.December; m++ {
				if _, ok := line.Monthly[m]; !ok {
					return errors.New("budgets: monthly map must carry all 12 months")
				}
			}
		}
	}
	return nil
}

// DistributeMonthly returns the effective monthly map for a line. A supplied
// map is returned as-is; otherwise the annual amount splits into 12 even
// shares truncated to 2dp, with the rounding remainder assigned to December
// so the map always sums exactly to the annual amount.
func DistributeMonthly(line BudgetLine) map[time.Month]decimal.Decimal {
	if line.Monthly != nil {
		return line.Monthly
	}
	share := line.Annual.Div(decimal.NewFromInt(12)).Truncate(2)
	out := make(map[time.Month]decimal.Decimal, 12)
	var allocated decimal.Decimal
	for m := time.January; m <= time.November; m++ {
		out[m] = share
		allocated = allocated.Add(share)
	}
	out[time.December] = line.Annual.Sub(allocated)
	return out
}

// ValidateActivation checks every line with an explicit monthly map against
// the absolute tolerance: a deviation of 0.01 or more in either direction
// fails. Lines without a map always pass since distribution is derived.
func ValidateActivation(b Budget) error {
	for _, line := range b.Lines {
		if line.Monthly == nil {
			continue
		}
		var sum decimal.Decimal
		for _, amount := range line.Monthly {
			sum = sum.Add(amount)
		}
		if sum.Sub(line.Annual).Abs().GreaterThanOrEqual(activationTolerance) {
			return ErrMonthlyMismatch
		}
	}
	return nil
}
