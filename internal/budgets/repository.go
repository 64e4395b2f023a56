package budgets

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists budgets and their lines.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the budget engine needs.
type TxRepository interface {
	InsertBudget(ctx context.Context, b Budget) (Budget, error)
	GetBudgetForUpdate(ctx context.Context, tenantID uuid.UUID, id int64) (Budget, error)
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, status BudgetStatus) error
	ReplaceLines(ctx context.Context, budgetID int64, lines []LineInput) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// monthlyJSON maps month numbers to decimal strings for jsonb storage.
func monthlyJSON(monthly map[time.Month]decimal.Decimal) ([]byte, error) {
	if monthly == nil {
		return nil, nil
	}
	out := make(map[string]string, len(monthly))
	for m, amount := range monthly {
		out[strconv.Itoa(int(m))] = amount.String()
	}
	return json.Marshal(out)
}

func monthlyFromJSON(raw []byte) (map[time.Month]decimal.Decimal, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var in map[string]string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, err
	}
	out := make(map[time.Month]decimal.Decimal, len(in))
	for k, v := range in {
		m, err := strconv.Atoi(k)
		if err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return nil, err
		}
		out[time.Month(m)] = amount
	}
	return out, nil
}

func (r *txRepository) InsertBudget(ctx context.Context, b Budget) (Budget, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO budgets (tenant_id, fiscal_year, name, status, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at, updated_at`,
		b.TenantID, b.FiscalYear, b.Name, b.Status, b.CreatedBy)
	if err := row.Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err, "uq_budgets_tenant_year") {
			return Budget{}, ErrDuplicateYear
		}
		return Budget{}, err
	}
	return b, nil
}

func (r *txRepository) GetBudgetForUpdate(ctx context.Context, tenantID uuid.UUID, id int64) (Budget, error) {
	row := r.tx.QueryRow(ctx, `SELECT id, tenant_id, fiscal_year, name, status, created_by, created_at, updated_at
FROM budgets WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	b, err := scanBudget(row)
	if err != nil {
		return Budget{}, err
	}
	b.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Budget{}, err
	}
	return b, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, tenantID uuid.UUID, id int64, status BudgetStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE budgets SET status=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBudgetNotFound
	}
	return nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, budgetID int64, lines []LineInput) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM budget_lines WHERE budget_id=$1`, budgetID); err != nil {
		return err
	}
	for _, line := range lines {
		monthly, err := monthlyJSON(line.Monthly)
		if err != nil {
			return err
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO budget_lines (budget_id, account_id, annual, monthly)
VALUES ($1,$2,$3,$4)`, budgetID, line.AccountID, line.Annual.String(), monthly); err != nil {
			return err
		}
	}
	return nil
}

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	err := row.Scan(&b.ID, &b.TenantID, &b.FiscalYear, &b.Name, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		return Budget{}, err
	}
	return b, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, budgetID int64) ([]BudgetLine, error) {
	rows, err := q.Query(ctx, `SELECT id, budget_id, account_id, annual::text, monthly
FROM budget_lines WHERE budget_id=$1 ORDER BY id`, budgetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []BudgetLine
	for rows.Next() {
		var (
			line    BudgetLine
			annual  string
			monthly []byte
		)
		if err := rows.Scan(&line.ID, &line.BudgetID, &line.AccountID, &annual, &monthly); err != nil {
			return nil, err
		}
		if line.Annual, err = decimal.NewFromString(annual); err != nil {
			return nil, err
		}
		if line.Monthly, err = monthlyFromJSON(monthly); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// GetBudget reads one budget with lines outside a transaction.
func (r *Repository) GetBudget(ctx context.Context, tenantID uuid.UUID, id int64) (Budget, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, tenant_id, fiscal_year, name, status, created_by, created_at, updated_at
FROM budgets WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	b, err := scanBudget(row)
	if err != nil {
		return Budget{}, err
	}
	b.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return Budget{}, err
	}
	return b, nil
}

// ListBudgets returns budgets for a tenant, newest fiscal year first.
func (r *Repository) ListBudgets(ctx context.Context, tenantID uuid.UUID) ([]Budget, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, tenant_id, fiscal_year, name, status, created_by, created_at, updated_at
FROM budgets WHERE tenant_id=$1 ORDER BY fiscal_year DESC`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Budget
	for rows.Next() {
		var b Budget
		if err := rows.Scan(&b.ID, &b.TenantID, &b.FiscalYear, &b.Name, &b.Status, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
