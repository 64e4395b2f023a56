package assets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
	"github.com/shepherd-cms/shepherd/internal/shared"
)

// LedgerPort submits journals. Depreciation never mutates balances directly;
// it computes figures and posts through the ledger, inside the transaction
// that records the depreciation log.
type LedgerPort interface {
	PostInTx(ctx context.Context, tx journals.TxRepository, input journals.PostingInput) (journals.Journal, error)
}

// RepositoryPort abstracts asset and log persistence.
type RepositoryPort interface {
	Insert(ctx context.Context, a FixedAsset) (FixedAsset, error)
	Get(ctx context.Context, tenantID uuid.UUID, id int64) (FixedAsset, error)
	ListActive(ctx context.Context, tenantID uuid.UUID) ([]FixedAsset, error)
	Deactivate(ctx context.Context, tenantID uuid.UUID, id int64) error
	HasLog(ctx context.Context, assetID int64, year int, month time.Month) (bool, error)
	SumPosted(ctx context.Context, assetID int64) (decimal.Decimal, error)
	ListLogs(ctx context.Context, assetID int64) ([]DepreciationLogEntry, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepositoryPort) error) error
}

// TxRepositoryPort is the transactional slice of the repository. Ledger
// exposes the same transaction to the journal service, so the depreciation
// journal and its log commit or roll back as one unit.
type TxRepositoryPort interface {
	InsertLog(ctx context.Context, entry DepreciationLogEntry) (DepreciationLogEntry, error)
	Ledger() journals.TxRepository
}

// maxTxRetries bounds retries of serialization conflicts before the error
// surfaces as a concurrency conflict.
const maxTxRetries = 3

// AuditPort records asset events for the audit trail collaborator.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the depreciation engine.
type Service struct {
	logger *slog.Logger
	repo   RepositoryPort
	ledger LedgerPort
	audit  AuditPort
	now    func() time.Time
}

// NewService constructs the asset service.
func NewService(logger *slog.Logger, repo RepositoryPort, ledger LedgerPort, audit AuditPort) *Service {
	return &Service{logger: logger, repo: repo, ledger: ledger, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a straight-line asset.
func (s *Service) Create(ctx context.Context, input CreateInput) (FixedAsset, error) {
	if err := input.Validate(); err != nil {
		return FixedAsset{}, err
	}
	a, err := s.repo.Insert(ctx, FixedAsset{
		TenantID:             input.TenantID,
		Name:                 input.Name,
		AcquisitionDate:      input.AcquisitionDate,
		Cost:                 input.Cost,
		Salvage:              input.Salvage,
		UsefulLifeMonths:     input.UsefulLifeMonths,
		Method:               MethodStraightLine,
		AssetAccountID:       input.AssetAccountID,
		ExpenseAccountID:     input.ExpenseAccountID,
		AccumulatedAccountID: input.AccumulatedAccountID,
		IsActive:             true,
	})
	if err != nil {
		return FixedAsset{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "asset.create", a.ID, nil, assetSnapshot(a))
	return a, nil
}

// Get returns one asset.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, id int64) (FixedAsset, error) {
	return s.repo.Get(ctx, tenantID, id)
}

// ListActive returns active assets for a tenant.
func (s *Service) ListActive(ctx context.Context, tenantID uuid.UUID) ([]FixedAsset, error) {
	return s.repo.ListActive(ctx, tenantID)
}

// Deactivate retires an asset.
func (s *Service) Deactivate(ctx context.Context, tenantID uuid.UUID, actorID, id int64) error {
	a, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, tenantID, id); err != nil {
		return err
	}
	after := a
	after.IsActive = false
	s.record(ctx, tenantID, actorID, "asset.deactivate", id, assetSnapshot(a), assetSnapshot(after))
	return nil
}

// Logs returns the posted depreciation history for an asset.
func (s *Service) Logs(ctx context.Context, tenantID uuid.UUID, assetID int64) ([]DepreciationLogEntry, error) {
	if _, err := s.repo.Get(ctx, tenantID, assetID); err != nil {
		return nil, err
	}
	return s.repo.ListLogs(ctx, assetID)
}

// PostMonthly posts one period of depreciation for one asset, idempotent per
// (asset, period). The charge is the straight-line monthly amount, clamped so
// the total posted never exceeds cost - salvage. The journal and its log
// commit in one transaction: a failed attempt leaves neither behind, so a
// rerun posts the period from scratch instead of duplicating the expense.
func (s *Service) PostMonthly(ctx context.Context, tenantID uuid.UUID, actorID, assetID int64, month time.Month, year int) (DepreciationLogEntry, error) {
	asset, err := s.repo.Get(ctx, tenantID, assetID)
	if err != nil {
		return DepreciationLogEntry{}, err
	}
	if !asset.IsActive {
		return DepreciationLogEntry{}, ErrAssetInactive
	}
	posted, err := s.repo.HasLog(ctx, assetID, year, month)
	if err != nil {
		return DepreciationLogEntry{}, err
	}
	if posted {
		return DepreciationLogEntry{}, ErrAlreadyPosted
	}

	base := asset.Cost.Sub(asset.Salvage)
	already, err := s.repo.SumPosted(ctx, assetID)
	if err != nil {
		return DepreciationLogEntry{}, err
	}
	amount := MonthlyDepreciation(asset)
	if remaining := base.Sub(already); amount.GreaterThan(remaining) {
		amount = remaining
	}
	if !amount.IsPositive() {
		return DepreciationLogEntry{}, ErrFullyDepreciated
	}

	periodEnd := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	accumulated := already.Add(amount)
	var entry DepreciationLogEntry
	err = db.RetrySerializable(ctx, maxTxRetries, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepositoryPort) error {
			journal, err := s.ledger.PostInTx(ctx, tx.Ledger(), journals.PostingInput{
				TenantID:    tenantID,
				ActorID:     actorID,
				Date:        periodEnd,
				Description: fmt.Sprintf("Depreciation %s %d-%02d", asset.Name, year, int(month)),
				Type:        journals.TypeDepreciation,
				Status:      journals.StatusApproved,
				Lines: []journals.LineInput{
					{AccountID: asset.ExpenseAccountID, Debit: amount},
					{AccountID: asset.AccumulatedAccountID, Credit: amount},
				},
			})
			if err != nil {
				return err
			}
			entry, err = tx.InsertLog(ctx, DepreciationLogEntry{
				AssetID:     assetID,
				Year:        year,
				Month:       month,
				Amount:      amount,
				Accumulated: accumulated,
				BookValue:   asset.Cost.Sub(accumulated),
				JournalID:   journal.ID,
			})
			return err
		})
	})
	if err != nil {
		if db.IsSerializationFailure(err) {
			return DepreciationLogEntry{}, fmt.Errorf("%w: %v", shared.ErrConcurrencyConflict, err)
		}
		return DepreciationLogEntry{}, err
	}
	s.record(ctx, tenantID, actorID, "asset.depreciate", assetID, nil, map[string]any{
		"period":      fmt.Sprintf("%d-%02d", year, int(month)),
		"amount":      amount.String(),
		"accumulated": accumulated.String(),
		"book_value":  entry.BookValue.String(),
		"journal_id":  entry.JournalID,
	})
	return entry, nil
}

// RunResult summarises one batch depreciation run.
type RunResult struct {
	Posted   int
	Skipped  int
	Failures map[int64]string
}

// RunMonthly posts the period for every active asset of a tenant. Units
// already posted or fully depreciated are skipped; per-unit failures are
// captured and do not abort the batch, so a crashed run is safely restartable.
func (s *Service) RunMonthly(ctx context.Context, tenantID uuid.UUID, actorID int64, month time.Month, year int) (RunResult, error) {
	active, err := s.repo.ListActive(ctx, tenantID)
	if err != nil {
		return RunResult{}, err
	}
	result := RunResult{Failures: map[int64]string{}}
	for _, asset := range active {
		_, err := s.PostMonthly(ctx, tenantID, actorID, asset.ID, month, year)
		switch {
		case err == nil:
			result.Posted++
		case errors.Is(err, ErrAlreadyPosted), errors.Is(err, ErrFullyDepreciated):
			result.Skipped++
		default:
			result.Failures[asset.ID] = err.Error()
			s.logger.Error("depreciation unit failed",
				slog.Int64("asset_id", asset.ID),
				slog.Int("year", year),
				slog.Int("month", int(month)),
				slog.Any("error", err))
		}
	}
	return result, nil
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, actorID int64, action string, entityID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Module:   "assets",
		Action:   action,
		Entity:   "fixed_asset",
		EntityID: fmt.Sprintf("%d", entityID),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func assetSnapshot(a FixedAsset) map[string]any {
	return map[string]any{
		"name":               a.Name,
		"acquisition_date":   a.AcquisitionDate.Format("2006-01-02"),
		"cost":               a.Cost.String(),
		"salvage":            a.Salvage.String(),
		"useful_life_months": a.UsefulLifeMonths,
		"method":             string(a.Method),
		"is_active":          a.IsActive,
	}
}
