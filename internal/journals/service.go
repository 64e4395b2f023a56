package journals

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetJournal(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error)
	ListJournals(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) ([]Journal, error)
}

// AuditPort records ledger events for the audit trail collaborator.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// maxTxRetries bounds retries of serialization conflicts before the error
// surfaces as a concurrency conflict.
const maxTxRetries = 3

// Service is the sole writer of financial transactions. Every other
// component submits journals through it and inherits its validation and
// numbering guarantees.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// withRetry re-runs fn on serialization failures a bounded number of times.
func (s *Service) withRetry(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.RetrySerializable(ctx, maxTxRetries, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, fn)
	})
	if db.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
	}
	return err
}

// Post validates and persists a new journal, draft or approved. The fiscal
// period gate and number allocation run inside one transaction.
func (s *Service) Post(ctx context.Context, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	var journal Journal
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		j, err := s.postInTx(ctx, tx, input)
		if err != nil {
			return err
		}
		journal = j
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "journal.post", journal.ID, nil, snapshot(journal))
	return journal, nil
}

// PostInTx posts a journal inside a transaction owned by the caller, so a
// dependent write commits or rolls back together with the ledger entry.
// Retries and auditing of the surrounding operation stay with the caller.
func (s *Service) PostInTx(ctx context.Context, tx TxRepository, input PostingInput) (Journal, error) {
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	return s.postInTx(ctx, tx, input)
}

func (s *Service) postInTx(ctx context.Context, tx TxRepository, input PostingInput) (Journal, error) {
	period, err := tx.GetPeriodForUpdate(ctx, input.TenantID, input.Date.Month(), input.Date.Year())
	if err != nil {
		return Journal{}, err
	}
	if !period.CanPost() {
		return Journal{}, periods.ErrPeriodLocked
	}
	seq, err := tx.NextSequence(ctx, input.TenantID, input.Date.Year(), input.Date.Month())
	if err != nil {
		return Journal{}, err
	}
	debit, credit := Totals(input.Lines)
	j := Journal{
		TenantID:      input.TenantID,
		Number:        FormatNumber(input.Date.Year(), input.Date.Month(), seq),
		Seq:           seq,
		Date:          input.Date,
		Description:   input.Description,
		Type:          input.Type,
		Status:        input.Status,
		TotalDebit:    debit,
		TotalCredit:   credit,
		IsBalanced:    true,
		AttachmentIDs: input.AttachmentIDs,
		CreatedBy:     input.ActorID,
	}
	if input.Status == StatusApproved {
		if !period.CanApprove() {
			return Journal{}, periods.ErrPeriodLocked
		}
		now := s.now()
		j.ApprovedBy = &input.ActorID
		j.ApprovedAt = &now
	}
	inserted, err := tx.InsertJournal(ctx, j)
	if err != nil {
		return Journal{}, err
	}
	if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
		return Journal{}, err
	}
	inserted.Lines = toJournalLines(inserted.ID, input.Lines)
	return inserted, nil
}

// Approve performs the one-way draft -> approved transition. The period gate
// is re-validated here because time may have passed since draft creation and
// the period may have been locked in between.
func (s *Service) Approve(ctx context.Context, tenantID uuid.UUID, actorID, journalID int64) (Journal, error) {
	var before, after Journal
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalWithLines(ctx, tenantID, journalID)
		if err != nil {
			return err
		}
		if current.Status == StatusApproved {
			return ErrAlreadyApproved
		}
		period, err := tx.GetPeriodForUpdate(ctx, tenantID, current.Date.Month(), current.Date.Year())
		if err != nil {
			return err
		}
		if !period.CanApprove() {
			return periods.ErrPeriodLocked
		}
		if err := verifyStoredBalance(current); err != nil {
			return err
		}
		if err := tx.MarkApproved(ctx, tenantID, journalID, actorID); err != nil {
			return err
		}
		before = current
		after = current
		after.Status = StatusApproved
		now := s.now()
		after.ApprovedBy = &actorID
		after.ApprovedAt = &now
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, tenantID, actorID, "journal.approve", after.ID, snapshot(before), snapshot(after))
	return after, nil
}

// UpdateDraft replaces the header and lines of a draft journal. Approved
// journals are immutable except for attachments. Moving the date across a
// month boundary gates both the origin and target periods, so a draft cannot
// be edited out of a locked month, and reallocates the number in the target
// month so numbers stay consistent with their period.
func (s *Service) UpdateDraft(ctx context.Context, input PostingInput, journalID int64) (Journal, error) {
	input.Status = StatusDraft
	if err := input.Validate(); err != nil {
		return Journal{}, err
	}
	var before, after Journal
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalWithLines(ctx, input.TenantID, journalID)
		if err != nil {
			return err
		}
		if current.Status == StatusApproved {
			return ErrAlreadyApproved
		}
		moved := current.Date.Year() != input.Date.Year() || current.Date.Month() != input.Date.Month()
		// Lock the affected period rows in chronological order so two
		// concurrent moves between the same months cannot deadlock.
		var origin, target periods.FiscalPeriod
		switch {
		case !moved:
			if target, err = tx.GetPeriodForUpdate(ctx, input.TenantID, input.Date.Month(), input.Date.Year()); err != nil {
				return err
			}
		case current.Date.Before(input.Date):
			if origin, err = tx.GetPeriodForUpdate(ctx, input.TenantID, current.Date.Month(), current.Date.Year()); err != nil {
				return err
			}
			if target, err = tx.GetPeriodForUpdate(ctx, input.TenantID, input.Date.Month(), input.Date.Year()); err != nil {
				return err
			}
		default:
			if target, err = tx.GetPeriodForUpdate(ctx, input.TenantID, input.Date.Month(), input.Date.Year()); err != nil {
				return err
			}
			if origin, err = tx.GetPeriodForUpdate(ctx, input.TenantID, current.Date.Month(), current.Date.Year()); err != nil {
				return err
			}
		}
		if moved && origin.Status == periods.StatusLocked {
			return periods.ErrPeriodLocked
		}
		if !target.CanPost() {
			return periods.ErrPeriodLocked
		}
		updated := current
		updated.Date = input.Date
		updated.Description = input.Description
		updated.Type = input.Type
		updated.TotalDebit, updated.TotalCredit = Totals(input.Lines)
		updated.IsBalanced = true
		if moved {
			seq, err := tx.NextSequence(ctx, input.TenantID, input.Date.Year(), input.Date.Month())
			if err != nil {
				return err
			}
			updated.Seq = seq
			updated.Number = FormatNumber(input.Date.Year(), input.Date.Month(), seq)
		}
		if err := tx.UpdateJournalHeader(ctx, updated); err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, journalID, input.Lines); err != nil {
			return err
		}
		updated.Lines = toJournalLines(journalID, input.Lines)
		before = current
		after = updated
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "journal.update", journalID, snapshot(before), snapshot(after))
	return after, nil
}

// DeleteDraft removes a draft journal. Requires a strictly open period:
// locked periods reject all mutation and closed periods reject removal of
// history.
func (s *Service) DeleteDraft(ctx context.Context, tenantID uuid.UUID, actorID, journalID int64) error {
	var before Journal
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalWithLines(ctx, tenantID, journalID)
		if err != nil {
			return err
		}
		if current.Status == StatusApproved {
			return ErrAlreadyApproved
		}
		period, err := tx.GetPeriodForUpdate(ctx, tenantID, current.Date.Month(), current.Date.Year())
		if err != nil {
			return err
		}
		if period.Status == periods.StatusLocked {
			return periods.ErrPeriodLocked
		}
		if period.Status == periods.StatusClosed {
			return periods.ErrPeriodClosed
		}
		before = current
		return tx.DeleteJournal(ctx, tenantID, journalID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "journal.delete", journalID, snapshot(before), nil)
	return nil
}

// SetAttachments replaces the attachment reference list. Allowed on approved
// journals; attachments are the one mutable field after approval.
func (s *Service) SetAttachments(ctx context.Context, tenantID uuid.UUID, actorID, journalID int64, attachmentIDs []string) (Journal, error) {
	var before, after Journal
	err := s.withRetry(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalWithLines(ctx, tenantID, journalID)
		if err != nil {
			return err
		}
		if err := tx.SetAttachments(ctx, tenantID, journalID, attachmentIDs); err != nil {
			return err
		}
		before = current
		after = current
		after.AttachmentIDs = attachmentIDs
		return nil
	})
	if err != nil {
		return Journal{}, err
	}
	s.record(ctx, tenantID, actorID, "journal.attachments", journalID, snapshot(before), snapshot(after))
	return after, nil
}

// Get returns a journal with its lines.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, journalID int64) (Journal, error) {
	return s.repo.GetJournal(ctx, tenantID, journalID)
}

// List returns journal headers for a month, newest first.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) ([]Journal, error) {
	return s.repo.ListJournals(ctx, tenantID, year, month)
}

// verifyStoredBalance re-checks the balance invariant against stored lines.
// A mismatch on an existing journal is corruption, not caller error.
func verifyStoredBalance(j Journal) error {
	var debit, credit decimal.Decimal
	for _, line := range j.Lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: journal %s", ErrIntegrity, j.Number)
	}
	return nil
}

func toJournalLines(journalID int64, lines []LineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:    journalID,
			AccountID:    line.AccountID,
			Description:  line.Description,
			Debit:        line.Debit,
			Credit:       line.Credit,
			CostCenterID: line.CostCenterID,
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, actorID int64, action string, entityID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Module:   "journals",
		Action:   action,
		Entity:   "journal",
		EntityID: fmt.Sprintf("%d", entityID),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func snapshot(j Journal) map[string]any {
	if j.ID == 0 && j.Number == "" {
		return nil
	}
	lines := make([]map[string]any, 0, len(j.Lines))
	for _, line := range j.Lines {
		lines = append(lines, map[string]any{
			"account_id": line.AccountID,
			"debit":      line.Debit.String(),
			"credit":     line.Credit.String(),
		})
	}
	var approvedBy any
	if j.ApprovedBy != nil {
		approvedBy = *j.ApprovedBy
	}
	return map[string]any{
		"number":       j.Number,
		"date":         j.Date.Format("2006-01-02"),
		"description":  j.Description,
		"type":         string(j.Type),
		"status":       string(j.Status),
		"total_debit":  j.TotalDebit.String(),
		"total_credit": j.TotalCredit.String(),
		"is_balanced":  j.IsBalanced,
		"approved_by":  approvedBy,
		"lines":        lines,
	}
}
