package yearend

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists closing records and aggregates yearly movements.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const closingColumns = `id, tenant_id, fiscal_year, total_income::text, total_expenses::text, net_income::text,
retained_earnings_account_id, journal_id, status, error_message, created_by, created_at, updated_at`

func scanClosing(row pgx.Row) (YearEndClosing, error) {
	var (
		c                                     YearEndClosing
		totalIncome, totalExpenses, netIncome string
	)
	err := row.Scan(&c.ID, &c.TenantID, &c.FiscalYear, &totalIncome, &totalExpenses, &netIncome,
		&c.RetainedEarningsAccountID, &c.JournalID, &c.Status, &c.ErrorMessage, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return YearEndClosing{}, ErrClosingNotFound
		}
		return YearEndClosing{}, err
	}
	if c.TotalIncome, err = decimal.NewFromString(totalIncome); err != nil {
		return YearEndClosing{}, err
	}
	if c.TotalExpenses, err = decimal.NewFromString(totalExpenses); err != nil {
		return YearEndClosing{}, err
	}
	if c.NetIncome, err = decimal.NewFromString(netIncome); err != nil {
		return YearEndClosing{}, err
	}
	return c, nil
}

// GetForYear returns the latest closing record for a fiscal year.
func (r *Repository) GetForYear(ctx context.Context, tenantID uuid.UUID, fiscalYear int) (YearEndClosing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+closingColumns+` FROM year_end_closings
WHERE tenant_id=$1 AND fiscal_year=$2 ORDER BY id DESC LIMIT 1`, tenantID, fiscalYear)
	return scanClosing(row)
}

// HasSuccess reports whether the fiscal year already closed successfully.
func (r *Repository) HasSuccess(ctx context.Context, tenantID uuid.UUID, fiscalYear int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM year_end_closings
WHERE tenant_id=$1 AND fiscal_year=$2 AND status='SUCCESS')`, tenantID, fiscalYear).Scan(&exists)
	return exists, err
}

// Insert starts a closing attempt. The partial unique index
// uq_year_end_closings_active covers PROCESSING and SUCCESS rows, admitting
// one live attempt per (tenant, fiscal year); losing the race surfaces
// ErrAlreadyClosed. FAILED rows fall outside the index, so a failed year
// stays open for retry.
func (r *Repository) Insert(ctx context.Context, c YearEndClosing) (YearEndClosing, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO year_end_closings
(tenant_id, fiscal_year, total_income, total_expenses, net_income, retained_earnings_account_id, status, error_message, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at, updated_at`,
		c.TenantID, c.FiscalYear, c.TotalIncome.String(), c.TotalExpenses.String(), c.NetIncome.String(),
		c.RetainedEarningsAccountID, c.Status, c.ErrorMessage, c.CreatedBy)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_year_end_closings_active") {
			return YearEndClosing{}, ErrAlreadyClosed
		}
		return YearEndClosing{}, err
	}
	return c, nil
}

// MarkSuccess finalises a closing attempt with its figures and journal.
func (r *Repository) MarkSuccess(ctx context.Context, id int64, totalIncome, totalExpenses, netIncome decimal.Decimal, journalID int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE year_end_closings
SET status='SUCCESS', total_income=$2, total_expenses=$3, net_income=$4, journal_id=$5, error_message='', updated_at=NOW()
WHERE id=$1`, id, totalIncome.String(), totalExpenses.String(), netIncome.String(), journalID)
	return err
}

// MarkSuccessWithoutJournal finalises a year with no Income/Expense movement.
func (r *Repository) MarkSuccessWithoutJournal(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx, `UPDATE year_end_closings
SET status='SUCCESS', error_message='', updated_at=NOW() WHERE id=$1`, id)
	return err
}

// MarkFailed captures the failure on the record for later inspection.
func (r *Repository) MarkFailed(ctx context.Context, id int64, message string) error {
	_, err := r.pool.Exec(ctx, `UPDATE year_end_closings
SET status='FAILED', error_message=$2, updated_at=NOW() WHERE id=$1`, id, message)
	return err
}

// AggregateMovements sums approved journal lines for the fiscal year over
// Income and Expense accounts, grouped by account.
func (r *Repository) AggregateMovements(ctx context.Context, tenantID uuid.UUID, fiscalYear int) ([]AccountMovement, error) {
	rows, err := r.pool.Query(ctx, `SELECT l.account_id, a.type, a.normal_balance,
COALESCE(SUM(l.debit), 0)::text, COALESCE(SUM(l.credit), 0)::text
FROM journal_lines l
JOIN journals j ON j.id = l.journal_id
JOIN accounts a ON a.id = l.account_id
WHERE j.tenant_id = $1
  AND j.status = 'APPROVED'
  AND j.number_year = $2
  AND a.type IN ('INCOME', 'EXPENSE')
GROUP BY l.account_id, a.type, a.normal_balance
ORDER BY l.account_id`, tenantID, fiscalYear)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMovement
	for rows.Next() {
		var (
			m             AccountMovement
			debit, credit string
		)
		if err := rows.Scan(&m.AccountID, &m.Type, &m.NormalBalance, &debit, &credit); err != nil {
			return nil, err
		}
		if m.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if m.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetRetainedEarningsAccount verifies the retained-earnings account exists,
// belongs to the tenant, and is an equity account.
func (r *Repository) GetRetainedEarningsAccount(ctx context.Context, tenantID uuid.UUID, accountID int64) (accounts.Account, error) {
	var acc accounts.Account
	err := r.pool.QueryRow(ctx, `SELECT id, tenant_id, code, name, type, normal_balance FROM accounts
WHERE tenant_id=$1 AND id=$2`, tenantID, accountID).
		Scan(&acc.ID, &acc.TenantID, &acc.Code, &acc.Name, &acc.Type, &acc.NormalBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return accounts.Account{}, accounts.ErrAccountNotFound
		}
		return accounts.Account{}, err
	}
	return acc, nil
}
