package assets

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/journals"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists assets and depreciation logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const assetColumns = `id, tenant_id, name, acquisition_date, cost::text, salvage::text, useful_life_months, method,
asset_account_id, expense_account_id, accumulated_account_id, is_active, created_at, updated_at`

func scanAsset(row pgx.Row) (FixedAsset, error) {
	var (
		a             FixedAsset
		cost, salvage string
	)
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.AcquisitionDate, &cost, &salvage, &a.UsefulLifeMonths, &a.Method,
		&a.AssetAccountID, &a.ExpenseAccountID, &a.AccumulatedAccountID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FixedAsset{}, ErrAssetNotFound
		}
		return FixedAsset{}, err
	}
	if a.Cost, err = decimal.NewFromString(cost); err != nil {
		return FixedAsset{}, err
	}
	if a.Salvage, err = decimal.NewFromString(salvage); err != nil {
		return FixedAsset{}, err
	}
	return a, nil
}

// Insert registers an asset.
func (r *Repository) Insert(ctx context.Context, a FixedAsset) (FixedAsset, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO fixed_assets
(tenant_id, name, acquisition_date, cost, salvage, useful_life_months, method, asset_account_id, expense_account_id, accumulated_account_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
RETURNING id, created_at, updated_at`,
		a.TenantID, a.Name, a.AcquisitionDate, a.Cost.String(), a.Salvage.String(), a.UsefulLifeMonths, a.Method,
		a.AssetAccountID, a.ExpenseAccountID, a.AccumulatedAccountID, a.IsActive)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return FixedAsset{}, err
	}
	return a, nil
}

// Get returns one asset.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, id int64) (FixedAsset, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanAsset(row)
}

// ListActive returns active assets for a tenant.
func (r *Repository) ListActive(ctx context.Context, tenantID uuid.UUID) ([]FixedAsset, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+assetColumns+` FROM fixed_assets WHERE tenant_id=$1 AND is_active ORDER BY id`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FixedAsset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deactivate retires an asset from future depreciation runs.
func (r *Repository) Deactivate(ctx context.Context, tenantID uuid.UUID, id int64) error {
	cmd, err := r.pool.Exec(ctx, `UPDATE fixed_assets SET is_active=FALSE, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAssetNotFound
	}
	return nil
}

// WithTx runs fn inside one repeatable-read transaction. The ledger view it
// exposes shares the transaction, so a depreciation journal and its log
// commit together.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepositoryPort) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) Ledger() journals.TxRepository {
	return journals.NewTxRepository(r.tx)
}

// InsertLog records a posted period. The unique constraint on
// (asset_id, year, month) makes the operation idempotent under races.
func (r *txRepository) InsertLog(ctx context.Context, entry DepreciationLogEntry) (DepreciationLogEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO depreciation_logs (asset_id, year, month, amount, accumulated, book_value, journal_id)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		entry.AssetID, entry.Year, int(entry.Month), entry.Amount.String(), entry.Accumulated.String(), entry.BookValue.String(), entry.JournalID)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_depreciation_logs_asset_period") {
			return DepreciationLogEntry{}, ErrAlreadyPosted
		}
		return DepreciationLogEntry{}, err
	}
	return entry, nil
}

// HasLog reports whether depreciation was already posted for (asset, period).
func (r *Repository) HasLog(ctx context.Context, assetID int64, year int, month time.Month) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM depreciation_logs WHERE asset_id=$1 AND year=$2 AND month=$3)`,
		assetID, year, int(month)).Scan(&exists)
	return exists, err
}

// SumPosted returns the total depreciation already posted for an asset.
func (r *Repository) SumPosted(ctx context.Context, assetID int64) (decimal.Decimal, error) {
	var total string
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::text FROM depreciation_logs WHERE asset_id=$1`, assetID).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromString(total)
}

// ListLogs returns posted periods for an asset, oldest first.
func (r *Repository) ListLogs(ctx context.Context, assetID int64) ([]DepreciationLogEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, asset_id, year, month, amount::text, accumulated::text, book_value::text, journal_id, created_at
FROM depreciation_logs WHERE asset_id=$1 ORDER BY year, month`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DepreciationLogEntry
	for rows.Next() {
		var (
			entry                        DepreciationLogEntry
			month                        int
			amount, accumulated, bookStr string
		)
		if err := rows.Scan(&entry.ID, &entry.AssetID, &entry.Year, &month, &amount, &accumulated, &bookStr, &entry.JournalID, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entry.Month = time.Month(month)
		if entry.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, err
		}
		if entry.Accumulated, err = decimal.NewFromString(accumulated); err != nil {
			return nil, err
		}
		if entry.BookValue, err = decimal.NewFromString(bookStr); err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
