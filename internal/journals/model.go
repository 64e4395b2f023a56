package journals

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// JournalType tags the origin of an entry.
type JournalType string

const (
	TypeGeneral        JournalType = "GENERAL"
	TypeOpeningBalance JournalType = "OPENING_BALANCE"
	TypeDepreciation   JournalType = "DEPRECIATION"
	TypeQuickEntry     JournalType = "QUICK_ENTRY"
	TypeYearEndClosing JournalType = "YEAR_END_CLOSING"
)

// JournalStatus enumerates the journal lifecycle. The only legal transition
// is DRAFT -> APPROVED.
type JournalStatus string

const (
	StatusDraft    JournalStatus = "DRAFT"
	StatusApproved JournalStatus = "APPROVED"
)

// Journal is a numbered, balance-invariant double entry.
type Journal struct {
	ID            int64
	TenantID      uuid.UUID
	Number        string
	Seq           int
	Date          time.Time
	Description   string
	Type          JournalType
	Status        JournalStatus
	TotalDebit    decimal.Decimal
	TotalCredit   decimal.Decimal
	IsBalanced    bool
	AttachmentIDs []string
	CreatedBy     int64
	ApprovedBy    *int64
	ApprovedAt    *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []JournalLine
}

// JournalLine stores one side of a double entry. Exactly one of Debit or
// Credit is strictly positive.
type JournalLine struct {
	ID           int64
	JournalID    int64
	AccountID    int64
	Description  string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CostCenterID *int64
}

// LineInput describes a journal line for a posting request.
type LineInput struct {
	AccountID    int64
	Description  string
	Debit        decimal.Decimal
	Credit       decimal.Decimal
	CostCenterID *int64
}

// PostingInput groups fields required to create a journal.
type PostingInput struct {
	TenantID      uuid.UUID
	ActorID       int64
	Date          time.Time
	Description   string
	Type          JournalType
	Status        JournalStatus
	Lines         []LineInput
	AttachmentIDs []string
}

var (
	// ErrTooFewLines indicates fewer than two lines.
	ErrTooFewLines = errors.New("journals: journal requires at least two lines")
	// ErrDuplicateAccount indicates an account used on more than one line.
	ErrDuplicateAccount = errors.New("journals: duplicate account across lines")
	// ErrInvalidLine indicates a line without exactly one positive side.
	ErrInvalidLine = errors.New("journals: line must carry exactly one of debit or credit")
	// ErrUnbalanced indicates total debit != total credit.
	ErrUnbalanced = errors.New("journals: journal lines must balance")
	// ErrJournalNotFound indicates a missing journal.
	ErrJournalNotFound = errors.New("journals: journal not found")
	// ErrAlreadyApproved indicates the one-way transition already happened.
	ErrAlreadyApproved = errors.New("journals: journal already approved")
	// ErrIntegrity indicates a stored approved journal no longer balances.
	// Never auto-corrected; reported as fatal.
	ErrIntegrity = errors.New("journals: approved journal fails balance invariant")
)

// FormatNumber renders the tenant-facing journal number.
func FormatNumber(year int, month time.Month, seq int) string {
	return fmt.Sprintf("JRN-%d-%02d-%04d", year, int(month), seq)
}

// ValidType reports whether t is a known journal type.
func ValidType(t JournalType) bool {
	switch t {
	case TypeGeneral, TypeOpeningBalance, TypeDepreciation, TypeQuickEntry, TypeYearEndClosing:
		return true
	default:
		return false
	}
}

// Validate runs the ordered line checks. The fiscal period gate is applied by
// the service inside the posting transaction, after these pass.
func (in PostingInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("journals: tenant required")
	}
	if in.Date.IsZero() {
		return errors.New("journals: date required")
	}
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("journals: description required")
	}
	if !ValidType(in.Type) {
		return errors.New("journals: unknown journal type")
	}
	if in.Status != StatusDraft && in.Status != StatusApproved {
		return errors.New("journals: status must be draft or approved")
	}
	return ValidateLines(in.Lines)
}

// ValidateLines applies checks 1-4 from the posting contract, each with its
// own failure mode, in order.
func ValidateLines(lines []LineInput) error {
	if len(lines) < 2 {
		return ErrTooFewLines
	}
	seen := make(map[int64]struct{}, len(lines))
	for _, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: missing account", ErrInvalidLine)
		}
		if _, dup := seen[line.AccountID]; dup {
			return ErrDuplicateAccount
		}
		seen[line.AccountID] = struct{}{}
	}
	var debit, credit decimal.Decimal
	for _, line := range lines {
		debitSet := line.Debit.IsPositive()
		creditSet := line.Credit.IsPositive()
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: negative amount", ErrInvalidLine)
		}
		if debitSet == creditSet {
			return ErrInvalidLine
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}

// Totals sums the line sides.
func Totals(lines []LineInput) (debit, credit decimal.Decimal) {
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}
