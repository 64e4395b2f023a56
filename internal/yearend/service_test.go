package yearend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/accounts"
	"github.com/shepherd-cms/shepherd/internal/journals"
)

var testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type memClosingRepo struct {
	records   map[int64]YearEndClosing
	movements []AccountMovement
	retained  map[int64]accounts.Account
	nextID    int64
}

func newMemClosingRepo() *memClosingRepo {
	return &memClosingRepo{
		records: map[int64]YearEndClosing{},
		retained: map[int64]accounts.Account{
			30: {ID: 30, TenantID: testTenant, Type: accounts.TypeEquity, NormalBalance: accounts.NormalCredit},
		},
		nextID: 1,
	}
}

func (m *memClosingRepo) GetForYear(_ context.Context, tenantID uuid.UUID, fiscalYear int) (YearEndClosing, error) {
	var latest YearEndClosing
	found := false
	for _, c := range m.records {
		if c.TenantID == tenantID && c.FiscalYear == fiscalYear && c.ID >= latest.ID {
			latest = c
			found = true
		}
	}
	if !found {
		return YearEndClosing{}, ErrClosingNotFound
	}
	return latest, nil
}

func (m *memClosingRepo) HasSuccess(_ context.Context, tenantID uuid.UUID, fiscalYear int) (bool, error) {
	for _, c := range m.records {
		if c.TenantID == tenantID && c.FiscalYear == fiscalYear && c.Status == StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

// Insert mirrors the partial unique index over live attempts: at most one
// PROCESSING or SUCCESS row per (tenant, fiscal year).
func (m *memClosingRepo) Insert(_ context.Context, c YearEndClosing) (YearEndClosing, error) {
	for _, existing := range m.records {
		if existing.TenantID == c.TenantID && existing.FiscalYear == c.FiscalYear &&
			(existing.Status == StatusProcessing || existing.Status == StatusSuccess) {
			return YearEndClosing{}, ErrAlreadyClosed
		}
	}
	c.ID = m.nextID
	m.nextID++
	m.records[c.ID] = c
	return c, nil
}

func (m *memClosingRepo) MarkSuccess(_ context.Context, id int64, totalIncome, totalExpenses, netIncome decimal.Decimal, journalID int64) error {
	c := m.records[id]
	c.Status = StatusSuccess
	c.TotalIncome = totalIncome
	c.TotalExpenses = totalExpenses
	c.NetIncome = netIncome
	c.JournalID = &journalID
	m.records[id] = c
	return nil
}

func (m *memClosingRepo) MarkSuccessWithoutJournal(_ context.Context, id int64) error {
	c := m.records[id]
	c.Status = StatusSuccess
	m.records[id] = c
	return nil
}

func (m *memClosingRepo) MarkFailed(_ context.Context, id int64, message string) error {
	c := m.records[id]
	c.Status = StatusFailed
	c.ErrorMessage = message
	m.records[id] = c
	return nil
}

func (m *memClosingRepo) AggregateMovements(_ context.Context, _ uuid.UUID, _ int) ([]AccountMovement, error) {
	return m.movements, nil
}

func (m *memClosingRepo) GetRetainedEarningsAccount(_ context.Context, tenantID uuid.UUID, accountID int64) (accounts.Account, error) {
	acc, ok := m.retained[accountID]
	if !ok || acc.TenantID != tenantID {
		return accounts.Account{}, accounts.ErrAccountNotFound
	}
	return acc, nil
}

type stubLedger struct {
	posted []journals.PostingInput
	err    error
}

func (l *stubLedger) Post(_ context.Context, input journals.PostingInput) (journals.Journal, error) {
	if l.err != nil {
		return journals.Journal{}, l.err
	}
	if err := input.Validate(); err != nil {
		return journals.Journal{}, err
	}
	l.posted = append(l.posted, input)
	return journals.Journal{ID: int64(len(l.posted)), Status: input.Status}, nil
}

func newTestService(repo *memClosingRepo, ledger *stubLedger) *Service {
	return NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), repo, ledger, nil)
}

func TestCloseZeroesAccountsAndPostsNetIncome(t *testing.T) {
	repo := newMemClosingRepo()
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("5000000"), Debit: d("0")},
		{AccountID: 2, Type: accounts.TypeExpense, NormalBalance: accounts.NormalDebit, Debit: d("3000000"), Credit: d("0")},
	}
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)

	c, err := svc.Close(context.Background(), testTenant, 9, 2024, 30)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.Status != StatusSuccess {
		t.Fatalf("status = %s", c.Status)
	}
	if !c.TotalIncome.Equal(d("5000000")) || !c.TotalExpenses.Equal(d("3000000")) || !c.NetIncome.Equal(d("2000000")) {
		t.Fatalf("figures = %s / %s / %s", c.TotalIncome, c.TotalExpenses, c.NetIncome)
	}
	if c.JournalID == nil {
		t.Fatalf("closing journal not linked")
	}

	if len(ledger.posted) != 1 {
		t.Fatalf("expected one closing journal")
	}
	j := ledger.posted[0]
	if j.Type != journals.TypeYearEndClosing || j.Status != journals.StatusApproved {
		t.Fatalf("journal type/status = %s/%s", j.Type, j.Status)
	}
	// Income debited, expense credited, net income credited to retained earnings.
	byAccount := map[int64]journals.LineInput{}
	for _, line := range j.Lines {
		byAccount[line.AccountID] = line
	}
	if !byAccount[1].Debit.Equal(d("5000000")) {
		t.Fatalf("income leg = %+v", byAccount[1])
	}
	if !byAccount[2].Credit.Equal(d("3000000")) {
		t.Fatalf("expense leg = %+v", byAccount[2])
	}
	if !byAccount[30].Credit.Equal(d("2000000")) {
		t.Fatalf("retained earnings leg = %+v", byAccount[30])
	}
}

func TestCloseNetLossDebitsRetainedEarnings(t *testing.T) {
	repo := newMemClosingRepo()
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("1000")},
		{AccountID: 2, Type: accounts.TypeExpense, NormalBalance: accounts.NormalDebit, Debit: d("1500")},
	}
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)

	c, err := svc.Close(context.Background(), testTenant, 9, 2024, 30)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !c.NetIncome.Equal(d("-500")) {
		t.Fatalf("net income = %s", c.NetIncome)
	}
	for _, line := range ledger.posted[0].Lines {
		if line.AccountID == 30 && !line.Debit.Equal(d("500")) {
			t.Fatalf("loss should debit retained earnings: %+v", line)
		}
	}
}

func TestCloseRejectsSecondSuccess(t *testing.T) {
	repo := newMemClosingRepo()
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("1000")},
	}
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	if _, err := svc.Close(ctx, testTenant, 9, 2024, 30); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if _, err := svc.Close(ctx, testTenant, 9, 2024, 30); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("second attempt must have no side effects")
	}
}

func TestCloseRejectsInFlightAttempt(t *testing.T) {
	repo := newMemClosingRepo()
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("1000")},
	}
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	// A sibling attempt holds the live slot for the year.
	if _, err := repo.Insert(ctx, YearEndClosing{TenantID: testTenant, FiscalYear: 2024, Status: StatusProcessing, CreatedBy: 8}); err != nil {
		t.Fatalf("seed in-flight attempt: %v", err)
	}

	if _, err := svc.Close(ctx, testTenant, 9, 2024, 30); !errors.Is(err, ErrAlreadyClosed) {
		t.Fatalf("expected ErrAlreadyClosed, got %v", err)
	}
	if len(ledger.posted) != 0 {
		t.Fatalf("losing attempt must not post a closing journal")
	}
}

func TestCloseFailureCapturedAndRetryable(t *testing.T) {
	repo := newMemClosingRepo()
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("1000")},
	}
	ledger := &stubLedger{err: errors.New("ledger unavailable")}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	c, err := svc.Close(ctx, testTenant, 9, 2024, 30)
	if !errors.Is(err, ErrAggregationFailed) {
		t.Fatalf("expected ErrAggregationFailed, got %v", err)
	}
	if c.Status != StatusFailed || c.ErrorMessage == "" {
		t.Fatalf("failure not captured: %+v", c)
	}

	// Retry after the ledger recovers.
	ledger.err = nil
	retried, err := svc.Close(ctx, testTenant, 9, 2024, 30)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if retried.Status != StatusSuccess {
		t.Fatalf("retry status = %s", retried.Status)
	}
}

func TestCloseRejectsNonEquityRetainedEarnings(t *testing.T) {
	repo := newMemClosingRepo()
	repo.retained[40] = accounts.Account{ID: 40, TenantID: testTenant, Type: accounts.TypeExpense, NormalBalance: accounts.NormalDebit}
	repo.movements = []AccountMovement{
		{AccountID: 1, Type: accounts.TypeIncome, NormalBalance: accounts.NormalCredit, Credit: d("1000")},
	}
	svc := newTestService(repo, &stubLedger{})

	if _, err := svc.Close(context.Background(), testTenant, 9, 2024, 40); !errors.Is(err, ErrAggregationFailed) {
		t.Fatalf("expected wrapped failure, got %v", err)
	}
}

func TestCloseQuietYearSucceedsWithoutJournal(t *testing.T) {
	repo := newMemClosingRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)

	c, err := svc.Close(context.Background(), testTenant, 9, 2024, 30)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if c.Status != StatusSuccess || c.JournalID != nil {
		t.Fatalf("quiet year should close without a journal: %+v", c)
	}
	if len(ledger.posted) != 0 {
		t.Fatalf("no journal expected")
	}
}
