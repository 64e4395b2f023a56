package accounts

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountType enumerates chart-of-accounts categories.
type AccountType string

const (
	TypeAsset     AccountType = "ASSET"
	TypeLiability AccountType = "LIABILITY"
	TypeEquity    AccountType = "EQUITY"
	TypeIncome    AccountType = "INCOME"
	TypeExpense   AccountType = "EXPENSE"
)

// NormalBalance states whether an account's natural increase is a debit or a
// credit.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "DEBIT"
	NormalCredit NormalBalance = "CREDIT"
)

// Account models a chart of accounts node. Level is derived from the parent
// chain; roots sit at level 0.
type Account struct {
	ID            int64
	TenantID      uuid.UUID
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
	Level         int
	IsActive      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	// ErrDuplicateCode indicates the tenant already has an account with the code.
	ErrDuplicateCode = errors.New("accounts: code already in use")
	// ErrInvalidParent indicates the parent is missing or belongs to another tenant.
	ErrInvalidParent = errors.New("accounts: invalid parent account")
	// ErrCycleDetected indicates the requested parent is a descendant of the account.
	ErrCycleDetected = errors.New("accounts: hierarchy cycle detected")
	// ErrAccountInUse indicates journal lines reference the account.
	ErrAccountInUse = errors.New("accounts: account referenced by journal lines")
	// ErrAccountHasChildren indicates child accounts block deletion.
	ErrAccountHasChildren = errors.New("accounts: account has child accounts")
	// ErrCodeImmutable indicates the code cannot change once journalled.
	ErrCodeImmutable = errors.New("accounts: code immutable once referenced by a journal")
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounts: account not found")
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	TenantID      uuid.UUID
	ActorID       int64
	Code          string
	Name          string
	Type          AccountType
	NormalBalance NormalBalance
	ParentID      *int64
}

// UpdateInput carries mutable account fields.
type UpdateInput struct {
	TenantID uuid.UUID
	ActorID  int64
	ID       int64
	Code     string
	Name     string
	ParentID *int64
	IsActive bool
}

// NormalizeCode trims and upper-cases an account code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// DefaultNormalBalance returns the conventional normal balance for a type.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case TypeAsset, TypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// ValidType reports whether t is a known account type.
func ValidType(t AccountType) bool {
	switch t {
	case TypeAsset, TypeLiability, TypeEquity, TypeIncome, TypeExpense:
		return true
	default:
		return false
	}
}

// Validate ensures create input meets minimum criteria.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("accounts: tenant required")
	}
	if NormalizeCode(in.Code) == "" {
		return errors.New("accounts: code required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("accounts: name required")
	}
	if !ValidType(in.Type) {
		return errors.New("accounts: unknown account type")
	}
	if in.NormalBalance != "" && in.NormalBalance != NormalDebit && in.NormalBalance != NormalCredit {
		return errors.New("accounts: unknown normal balance")
	}
	return nil
}
