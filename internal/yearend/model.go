package yearend

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/accounts"
)

// ClosingStatus enumerates the closing lifecycle. Success is write-once per
// (tenant, fiscal year); failed records are retried by re-invocation.
type ClosingStatus string

const (
	StatusPending    ClosingStatus = "PENDING"
	StatusProcessing ClosingStatus = "PROCESSING"
	StatusSuccess    ClosingStatus = "SUCCESS"
	StatusFailed     ClosingStatus = "FAILED"
)

// YearEndClosing records one closing attempt for a fiscal year.
type YearEndClosing struct {
	ID                        int64
	TenantID                  uuid.UUID
	FiscalYear                int
	TotalIncome               decimal.Decimal
	TotalExpenses             decimal.Decimal
	NetIncome                 decimal.Decimal
	RetainedEarningsAccountID int64
	JournalID                 *int64
	Status                    ClosingStatus
	ErrorMessage              string
	CreatedBy                 int64
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// AccountMovement is the yearly net movement of one Income or Expense
// account, aggregated from approved journal lines.
type AccountMovement struct {
	AccountID     int64
	Type          accounts.AccountType
	NormalBalance accounts.NormalBalance
	Debit         decimal.Decimal
	Credit        decimal.Decimal
}

// Net folds debit and credit into a signed total using the account's normal
// balance convention: positive means the account accumulated in its natural
// direction over the year.
func (m AccountMovement) Net() decimal.Decimal {
	if m.NormalBalance == accounts.NormalDebit {
		return m.Debit.Sub(m.Credit)
	}
	return m.Credit.Sub(m.Debit)
}

var (
	// ErrAlreadyClosed indicates a success record already exists for the year.
	ErrAlreadyClosed = errors.New("yearend: fiscal year already closed")
	// ErrAggregationFailed indicates the closing attempt failed; the failure
	// is captured on the record and the run may be retried.
	ErrAggregationFailed = errors.New("yearend: closing failed")
	// ErrClosingNotFound indicates a missing closing record.
	ErrClosingNotFound = errors.New("yearend: closing record not found")
)
