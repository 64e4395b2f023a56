package accounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists chart-of-accounts rows.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (Account, error)
	Insert(ctx context.Context, acc Account) (Account, error)
	Update(ctx context.Context, acc Account) error
	UpdateLevel(ctx context.Context, tenantID uuid.UUID, id int64, level int) error
	Delete(ctx context.Context, tenantID uuid.UUID, id int64) error
	List(ctx context.Context, tenantID uuid.UUID) ([]Account, error)
	HasJournalLines(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error)
	HasChildren(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounts repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, parent_id, level, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.Level, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetByID(ctx context.Context, tenantID uuid.UUID, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return scanAccount(row)
}

func (r *txRepository) Insert(ctx context.Context, acc Account) (Account, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, normal_balance, parent_id, level, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at, updated_at`,
		acc.TenantID, acc.Code, acc.Name, acc.Type, acc.NormalBalance, acc.ParentID, acc.Level, acc.IsActive)
	if err := row.Scan(&acc.ID, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return acc, nil
}

func (r *txRepository) Update(ctx context.Context, acc Account) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET code=$3, name=$4, parent_id=$5, level=$6, is_active=$7, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2`, acc.TenantID, acc.ID, acc.Code, acc.Name, acc.ParentID, acc.Level, acc.IsActive)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_accounts_tenant_code") {
			return ErrDuplicateCode
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) UpdateLevel(ctx context.Context, tenantID uuid.UUID, id int64, level int) error {
	_, err := r.tx.Exec(ctx, `UPDATE accounts SET level=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, level)
	return err
}

func (r *txRepository) Delete(ctx context.Context, tenantID uuid.UUID, id int64) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) List(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.Level, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) HasJournalLines(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (
SELECT 1 FROM journal_lines jl JOIN journals j ON j.id = jl.journal_id
WHERE j.tenant_id=$1 AND jl.account_id=$2)`, tenantID, accountID).Scan(&exists)
	return exists, err
}

func (r *txRepository) HasChildren(ctx context.Context, tenantID uuid.UUID, accountID int64) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE tenant_id=$1 AND parent_id=$2)`, tenantID, accountID).Scan(&exists)
	return exists, err
}

// ListAccounts reads the tenant chart outside a transaction, for reporting.
func (r *Repository) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.ParentID, &a.Level, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}
