package yearend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// LedgerPort submits the closing journal through the ledger.
type LedgerPort interface {
	Post(ctx context.Context, input journals.PostingInput) (journals.Journal, error)
}

// RepositoryPort abstracts closing persistence and aggregation.
type RepositoryPort interface {
	GetForYear(ctx context.Context, tenantID uuid.UUID, fiscalYear int) (YearEndClosing, error)
	HasSuccess(ctx context.Context, tenantID uuid.UUID, fiscalYear int) (bool, error)
	Insert(ctx context.Context, c YearEndClosing) (YearEndClosing, error)
	MarkSuccess(ctx context.Context, id int64, totalIncome, totalExpenses, netIncome decimal.Decimal, journalID int64) error
	MarkSuccessWithoutJournal(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, message string) error
	AggregateMovements(ctx context.Context, tenantID uuid.UUID, fiscalYear int) ([]AccountMovement, error)
	GetRetainedEarningsAccount(ctx context.Context, tenantID uuid.UUID, accountID int64) (accounts.Account, error)
}

// AuditPort records closing events for the audit trail collaborator.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the year-end closing process.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the closing service.
func NewService(logger *slog.Logger, repo RepositoryPort, ledger LedgerPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: ledger, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Status returns the latest closing record for a fiscal year.
func (s *Service) Status(ctx context.Context, tenantID uuid.UUID, fiscalYear int) (YearEndClosing, error) {
	return s.repo.GetForYear(ctx, tenantID, fiscalYear)
}

// Close aggregates the fiscal year and posts the closing journal. The insert
// of the PROCESSING record is the serialization point: a partial unique index
// admits one live attempt per (tenant, fiscal year), so a concurrent or
// completed close is rejected with ErrAlreadyClosed; the HasSuccess pre-check
// only provides the friendly fast path. Failures are captured on the record,
// which reopens the year for retry, and additionally surfaced wrapped in
// ErrAggregationFailed.
func (s *Service) Close(ctx context.Context, tenantID uuid.UUID, actorID int64, fiscalYear int, retainedEarningsAccountID int64) (YearEndClosing, error) {
	done, err := s.repo.HasSuccess(ctx, tenantID, fiscalYear)
	if err != nil {
		return YearEndClosing{}, err
	}
	if done {
		return YearEndClosing{}, ErrAlreadyClosed
	}

	record, err := s.repo.Insert(ctx, YearEndClosing{
		TenantID:                  tenantID,
		FiscalYear:                fiscalYear,
		RetainedEarningsAccountID: retainedEarningsAccountID,
		Status:                    StatusProcessing,
		CreatedBy:                 actorID,
	})
	if err != nil {
		return YearEndClosing{}, err
	}

	result, err := s.run(ctx, record, actorID)
	if err != nil {
		s.logger.Error("year-end closing failed",
			slog.Int("fiscal_year", fiscalYear),
			slog.Any("error", err))
		if markErr := s.repo.MarkFailed(ctx, record.ID, err.Error()); markErr != nil {
			s.logger.Error("marking closing failed", slog.Any("error", markErr))
		}
		record.Status = StatusFailed
		record.ErrorMessage = err.Error()
		return record, fmt.Errorf("%w: %v", ErrAggregationFailed, err)
	}

	s.record(ctx, tenantID, actorID, "yearend.close", result.ID, nil, closingSnapshot(result))
	return result, nil
}

func (s *Service) run(ctx context.Context, record YearEndClosing, actorID int64) (YearEndClosing, error) {
	retained, err := s.repo.GetRetainedEarningsAccount(ctx, record.TenantID, record.RetainedEarningsAccountID)
	if err != nil {
		return YearEndClosing{}, fmt.Errorf("retained earnings account: %w", err)
	}
	if retained.Type != accounts.TypeEquity {
		return YearEndClosing{}, errors.New("retained earnings account must be an equity account")
	}

	movements, err := s.repo.AggregateMovements(ctx, record.TenantID, record.FiscalYear)
	if err != nil {
		return YearEndClosing{}, fmt.Errorf("aggregate: %w", err)
	}

	var totalIncome, totalExpenses decimal.Decimal
	lines := make([]journals.LineInput, 0, len(movements)+1)
	for _, m := range movements {
		net := m.Net()
		if m.Type == accounts.TypeIncome {
			totalIncome = totalIncome.Add(net)
		} else {
			totalExpenses = totalExpenses.Add(net)
		}
		if net.IsZero() {
			continue
		}
		lines = append(lines, closingLine(m, net))
	}
	netIncome := totalIncome.Sub(totalExpenses)

	record.TotalIncome = totalIncome
	record.TotalExpenses = totalExpenses
	record.NetIncome = netIncome

	if len(lines) == 0 {
		// Nothing moved this year; close without a journal.
		if err := s.repo.MarkSuccessWithoutJournal(ctx, record.ID); err != nil {
			return YearEndClosing{}, err
		}
		record.Status = StatusSuccess
		return record, nil
	}

	if !netIncome.IsZero() {
		re := journals.LineInput{AccountID: record.RetainedEarningsAccountID, Description: "Net income to retained earnings"}
		if netIncome.IsPositive() {
			re.Credit = netIncome
		} else {
			re.Debit = netIncome.Neg()
		}
		lines = append(lines, re)
	}

	journal, err := s.ledger.Post(ctx, journals.PostingInput{
		TenantID:    record.TenantID,
		ActorID:     actorID,
		Date:        time.Date(record.FiscalYear, time.December, 31, 0, 0, 0, 0, time.UTC),
		Description: fmt.Sprintf("Year-end closing %d", record.FiscalYear),
		Type:        journals.TypeYearEndClosing,
		Status:      journals.StatusApproved,
		Lines:       lines,
	})
	if err != nil {
		return YearEndClosing{}, fmt.Errorf("closing journal: %w", err)
	}

	if err := s.repo.MarkSuccess(ctx, record.ID, totalIncome, totalExpenses, netIncome, journal.ID); err != nil {
		return YearEndClosing{}, err
	}
	record.Status = StatusSuccess
	record.JournalID = &journal.ID
	return record, nil
}

// closingLine reverses an account's net yearly movement. A positive net on a
// credit-normal account is zeroed with a debit, and vice versa; negative nets
// flip the side.
func closingLine(m AccountMovement, net decimal.Decimal) journals.LineInput {
	line := journals.LineInput{AccountID: m.AccountID, Description: "Year-end closing"}
	amount := net
	flip := false
	if amount.IsNegative() {
		amount = amount.Neg()
		flip = true
	}
	debitSide := m.NormalBalance == accounts.NormalCredit
	if flip {
		debitSide = !debitSide
	}
	if debitSide {
		line.Debit = amount
	} else {
		line.Credit = amount
	}
	return line
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, actorID int64, action string, entityID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Module:   "yearend",
		Action:   action,
		Entity:   "year_end_closing",
		EntityID: fmt.Sprintf("%d", entityID),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func closingSnapshot(c YearEndClosing) map[string]any {
	var journalID any
	if c.JournalID != nil {
		journalID = *c.JournalID
	}
	return map[string]any{
		"fiscal_year":    c.FiscalYear,
		"total_income":   c.TotalIncome.String(),
		"total_expenses": c.TotalExpenses.String(),
		"net_income":     c.NetIncome.String(),
		"status":         string(c.Status),
		"journal_id":     journalID,
	}
}
