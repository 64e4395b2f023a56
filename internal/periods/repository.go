package periods

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists fiscal period rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const periodColumns = `id, tenant_id, month, year, status, closed_by, closed_at, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (FiscalPeriod, error) {
	var p FiscalPeriod
	var month int
	err := row.Scan(&p.ID, &p.TenantID, &month, &p.Year, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalPeriod{}, ErrPeriodNotFound
		}
		return FiscalPeriod{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

// GetOrCreateForUpdate returns the period row locked FOR UPDATE, vivifying it
// as OPEN when absent. Works inside the caller's transaction so period guards
// hold until commit.
func GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, tenantID uuid.UUID, month time.Month, year int) (FiscalPeriod, error) {
	_, err := tx.Exec(ctx, `INSERT INTO fiscal_periods (tenant_id, month, year, status)
VALUES ($1, $2, $3, 'OPEN') ON CONFLICT (tenant_id, month, year) DO NOTHING`, tenantID, int(month), year)
	if err != nil {
		return FiscalPeriod{}, err
	}
	row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE tenant_id=$1 AND month=$2 AND year=$3 FOR UPDATE`, tenantID, int(month), year)
	return scanPeriod(row)
}

// Get returns the period without locking, vivifying it as OPEN when absent.
func (r *Repository) Get(ctx context.Context, tenantID uuid.UUID, month time.Month, year int) (FiscalPeriod, error) {
	var period FiscalPeriod
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var e error
		period, e = GetOrCreateForUpdate(ctx, tx, tenantID, month, year)
		return e
	})
	return period, err
}

// List returns the tenant's period records for a year.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID, year int) ([]FiscalPeriod, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+periodColumns+` FROM fiscal_periods
WHERE tenant_id=$1 AND year=$2 ORDER BY month`, tenantID, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FiscalPeriod
	for rows.Next() {
		var p FiscalPeriod
		var month int
		if err := rows.Scan(&p.ID, &p.TenantID, &month, &p.Year, &p.Status, &p.ClosedBy, &p.ClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.Month = time.Month(month)
		out = append(out, p)
	}
	return out, rows.Err()
}

// Transition applies a lifecycle edge inside its own transaction, re-reading
// the row FOR UPDATE so concurrent transitions serialize.
func (r *Repository) Transition(ctx context.Context, tenantID uuid.UUID, month time.Month, year int, target Status, actorID int64) (FiscalPeriod, error) {
	var period FiscalPeriod
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := GetOrCreateForUpdate(ctx, tx, tenantID, month, year)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, target) {
			return ErrInvalidStateTransition
		}
		switch target {
		case StatusClosed:
			_, err = tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_by=$3, closed_at=NOW(), updated_at=NOW() WHERE id=$1`, current.ID, target, actorID)
		case StatusLocked:
			_, err = tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, locked_by=$3, locked_at=NOW(), updated_at=NOW() WHERE id=$1`, current.ID, target, actorID)
		default:
			_, err = tx.Exec(ctx, `UPDATE fiscal_periods SET status=$2, closed_by=NULL, closed_at=NULL, locked_by=NULL, locked_at=NULL, updated_at=NOW() WHERE id=$1`, current.ID, target)
		}
		if err != nil {
			return err
		}
		row := tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM fiscal_periods WHERE id=$1`, current.ID)
		period, err = scanPeriod(row)
		return err
	})
	return period, err
}
