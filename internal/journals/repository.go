package journals

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/periods"
	"github.com/shepherd-cms/shepherd/internal/platform/db"
)

// Repository persists journals, lines, and the numbering counters.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations the ledger needs. Period
// access runs through the same transaction so guards hold until commit.
type TxRepository interface {
	GetPeriodForUpdate(ctx context.Context, tenantID uuid.UUID, month time.Month, year int) (periods.FiscalPeriod, error)
	NextSequence(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (int, error)
	InsertJournal(ctx context.Context, j Journal) (Journal, error)
	InsertLines(ctx context.Context, journalID int64, lines []LineInput) error
	GetJournalWithLines(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error)
	UpdateJournalHeader(ctx context.Context, j Journal) error
	ReplaceLines(ctx context.Context, journalID int64, lines []LineInput) error
	MarkApproved(ctx context.Context, tenantID uuid.UUID, id, actorID int64) error
	DeleteJournal(ctx context.Context, tenantID uuid.UUID, id int64) error
	SetAttachments(ctx context.Context, tenantID uuid.UUID, id int64, attachmentIDs []string) error
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("journals repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// NewTxRepository adapts an already-open transaction, so callers can compose
// a ledger write with statements of their own and commit them as one unit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetPeriodForUpdate(ctx context.Context, tenantID uuid.UUID, month time.Month, year int) (periods.FiscalPeriod, error) {
	return periods.GetOrCreateForUpdate(ctx, r.tx, tenantID, month, year)
}

// NextSequence allocates the next journal sequence for (tenant, year, month)
// with a single atomic upsert. On first use the counter seeds itself from the
// maximum sequence already committed for that key, so pre-counter data keeps
// monotonic numbering; afterwards the conflict arm performs the increment, so
// two concurrent allocations can never observe the same value.
func (r *txRepository) NextSequence(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO journal_counters (tenant_id, year, month, seq)
VALUES ($1, $2, $3, COALESCE((SELECT MAX(seq) FROM journals WHERE tenant_id=$1 AND number_year=$2 AND number_month=$3), 0) + 1)
ON CONFLICT (tenant_id, year, month)
DO UPDATE SET seq = journal_counters.seq + 1, updated_at = NOW()
RETURNING seq`, tenantID, year, int(month)).Scan(&seq)
	return seq, err
}

const journalColumns = `id, tenant_id, number, seq, number_year, number_month, date, description, type, status,
total_debit::text, total_credit::text, is_balanced, attachment_ids, created_by, approved_by, approved_at, created_at, updated_at`

func scanJournal(row pgx.Row) (Journal, error) {
	var (
		j                       Journal
		numberYear, numberMonth int
		totalDebit, totalCredit string
	)
	err := row.Scan(&j.ID, &j.TenantID, &j.Number, &j.Seq, &numberYear, &numberMonth, &j.Date, &j.Description, &j.Type, &j.Status,
		&totalDebit, &totalCredit, &j.IsBalanced, &j.AttachmentIDs, &j.CreatedBy, &j.ApprovedBy, &j.ApprovedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Journal{}, ErrJournalNotFound
		}
		return Journal{}, err
	}
	if j.TotalDebit, err = decimal.NewFromString(totalDebit); err != nil {
		return Journal{}, err
	}
	if j.TotalCredit, err = decimal.NewFromString(totalCredit); err != nil {
		return Journal{}, err
	}
	return j, nil
}

func (r *txRepository) InsertJournal(ctx context.Context, j Journal) (Journal, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO journals
(tenant_id, number, seq, number_year, number_month, date, description, type, status, total_debit, total_credit, is_balanced, attachment_ids, created_by, approved_by, approved_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
RETURNING id, created_at, updated_at`,
		j.TenantID, j.Number, j.Seq, j.Date.Year(), int(j.Date.Month()), j.Date, j.Description, j.Type, j.Status,
		j.TotalDebit.String(), j.TotalCredit.String(), j.IsBalanced, j.AttachmentIDs, j.CreatedBy, j.ApprovedBy, j.ApprovedAt)
	if err := row.Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return Journal{}, err
	}
	return j, nil
}

func (r *txRepository) InsertLines(ctx context.Context, journalID int64, lines []LineInput) error {
	for _, line := range lines {
		if _, err := r.tx.Exec(ctx, `INSERT INTO journal_lines (journal_id, account_id, description, debit, credit, cost_center_id)
VALUES ($1,$2,$3,$4,$5,$6)`, journalID, line.AccountID, line.Description, line.Debit.String(), line.Credit.String(), line.CostCenterID); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id)
	j, err := scanJournal(row)
	if err != nil {
		return Journal{}, err
	}
	j.Lines, err = loadLines(ctx, r.tx, id)
	if err != nil {
		return Journal{}, err
	}
	return j, nil
}

func loadLines(ctx context.Context, q interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}, journalID int64) ([]JournalLine, error) {
	rows, err := q.Query(ctx, `SELECT id, journal_id, account_id, description, debit::text, credit::text, cost_center_id
FROM journal_lines WHERE journal_id=$1 ORDER BY id`, journalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var (
			line          JournalLine
			debit, credit string
		)
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.Description, &debit, &credit, &line.CostCenterID); err != nil {
			return nil, err
		}
		if line.Debit, err = decimal.NewFromString(debit); err != nil {
			return nil, err
		}
		if line.Credit, err = decimal.NewFromString(credit); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (r *txRepository) UpdateJournalHeader(ctx context.Context, j Journal) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journals SET number=$3, seq=$4, number_year=$5, number_month=$6, date=$7, description=$8, type=$9,
total_debit=$10, total_credit=$11, is_balanced=$12, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status='DRAFT'`,
		j.TenantID, j.ID, j.Number, j.Seq, j.Date.Year(), int(j.Date.Month()), j.Date, j.Description, j.Type,
		j.TotalDebit.String(), j.TotalCredit.String(), j.IsBalanced)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyApproved
	}
	return nil
}

func (r *txRepository) ReplaceLines(ctx context.Context, journalID int64, lines []LineInput) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_id=$1`, journalID); err != nil {
		return err
	}
	return r.InsertLines(ctx, journalID, lines)
}

func (r *txRepository) MarkApproved(ctx context.Context, tenantID uuid.UUID, id, actorID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journals SET status='APPROVED', approved_by=$3, approved_at=NOW(), updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status='DRAFT'`, tenantID, id, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyApproved
	}
	return nil
}

func (r *txRepository) DeleteJournal(ctx context.Context, tenantID uuid.UUID, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM journal_lines WHERE journal_id=$1`, id); err != nil {
		return err
	}
	cmd, err := r.tx.Exec(ctx, `DELETE FROM journals WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

func (r *txRepository) SetAttachments(ctx context.Context, tenantID uuid.UUID, id int64, attachmentIDs []string) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE journals SET attachment_ids=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, attachmentIDs)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrJournalNotFound
	}
	return nil
}

// GetJournal reads one journal with lines outside a transaction.
func (r *Repository) GetJournal(ctx context.Context, tenantID uuid.UUID, id int64) (Journal, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+journalColumns+` FROM journals WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	j, err := scanJournal(row)
	if err != nil {
		return Journal{}, err
	}
	j.Lines, err = loadLines(ctx, r.pool, id)
	if err != nil {
		return Journal{}, err
	}
	return j, nil
}

// ListJournals returns journal headers for a tenant month, newest first.
func (r *Repository) ListJournals(ctx context.Context, tenantID uuid.UUID, year int, month time.Month) ([]Journal, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+journalColumns+` FROM journals
WHERE tenant_id=$1 AND number_year=$2 AND number_month=$3 ORDER BY seq DESC`, tenantID, year, int(month))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Journal
	for rows.Next() {
		j, err := scanJournalFromRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJournalFromRows(rows pgx.Rows) (Journal, error) {
	var (
		j                       Journal
		numberYear, numberMonth int
		totalDebit, totalCredit string
	)
	err := rows.Scan(&j.ID, &j.TenantID, &j.Number, &j.Seq, &numberYear, &numberMonth, &j.Date, &j.Description, &j.Type, &j.Status,
		&totalDebit, &totalCredit, &j.IsBalanced, &j.AttachmentIDs, &j.CreatedBy, &j.ApprovedBy, &j.ApprovedAt, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return Journal{}, err
	}
	if j.TotalDebit, err = decimal.NewFromString(totalDebit); err != nil {
		return Journal{}, err
	}
	if j.TotalCredit, err = decimal.NewFromString(totalCredit); err != nil {
		return Journal{}, err
	}
	return j, nil
}
