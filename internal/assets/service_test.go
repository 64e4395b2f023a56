package assets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/journals"
)

var testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

type logKey struct {
	assetID int64
	year    int
	month   time.Month
}

type memAssetRepo struct {
	assets  map[int64]FixedAsset
	logs    map[logKey]DepreciationLogEntry
	ledger  *stubLedger
	failLog error
	nextID  int64
}

func newMemAssetRepo() *memAssetRepo {
	return &memAssetRepo{assets: map[int64]FixedAsset{}, logs: map[logKey]DepreciationLogEntry{}, nextID: 1}
}

func (m *memAssetRepo) Insert(_ context.Context, a FixedAsset) (FixedAsset, error) {
	a.ID = m.nextID
	m.nextID++
	m.assets[a.ID] = a
	return a, nil
}

func (m *memAssetRepo) Get(_ context.Context, tenantID uuid.UUID, id int64) (FixedAsset, error) {
	a, ok := m.assets[id]
	if !ok || a.TenantID != tenantID {
		return FixedAsset{}, ErrAssetNotFound
	}
	return a, nil
}

func (m *memAssetRepo) ListActive(_ context.Context, tenantID uuid.UUID) ([]FixedAsset, error) {
	var out []FixedAsset
	for id := int64(1); id < m.nextID; id++ {
		if a, ok := m.assets[id]; ok && a.TenantID == tenantID && a.IsActive {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAssetRepo) Deactivate(_ context.Context, tenantID uuid.UUID, id int64) error {
	a, ok := m.assets[id]
	if !ok || a.TenantID != tenantID {
		return ErrAssetNotFound
	}
	a.IsActive = false
	m.assets[id] = a
	return nil
}

func (m *memAssetRepo) HasLog(_ context.Context, assetID int64, year int, month time.Month) (bool, error) {
	_, ok := m.logs[logKey{assetID, year, month}]
	return ok, nil
}

// WithTx stages writes and applies them only when fn succeeds, mirroring the
// rollback a failed database transaction would perform.
func (m *memAssetRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepositoryPort) error) error {
	tx := &memAssetTx{repo: m}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, entry := range tx.logs {
		m.logs[logKey{entry.AssetID, entry.Year, entry.Month}] = entry
	}
	if m.ledger != nil {
		m.ledger.posted = append(m.ledger.posted, tx.posted...)
	}
	return nil
}

type memAssetTx struct {
	repo   *memAssetRepo
	logs   []DepreciationLogEntry
	posted []journals.PostingInput
}

func (tx *memAssetTx) Ledger() journals.TxRepository {
	return &memLedgerTx{owner: tx}
}

func (tx *memAssetTx) InsertLog(_ context.Context, entry DepreciationLogEntry) (DepreciationLogEntry, error) {
	if err := tx.repo.failLog; err != nil {
		tx.repo.failLog = nil
		return DepreciationLogEntry{}, err
	}
	if _, dup := tx.repo.logs[logKey{entry.AssetID, entry.Year, entry.Month}]; dup {
		return DepreciationLogEntry{}, ErrAlreadyPosted
	}
	entry.ID = int64(len(tx.repo.logs) + len(tx.logs) + 1)
	tx.logs = append(tx.logs, entry)
	return entry, nil
}

// memLedgerTx marks the transaction the stub ledger stages into. The embedded
// interface is never invoked.
type memLedgerTx struct {
	journals.TxRepository
	owner *memAssetTx
}

func (m *memAssetRepo) SumPosted(_ context.Context, assetID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	for _, entry := range m.logs {
		if entry.AssetID == assetID {
			total = total.Add(entry.Amount)
		}
	}
	return total, nil
}

func (m *memAssetRepo) ListLogs(_ context.Context, assetID int64) ([]DepreciationLogEntry, error) {
	var out []DepreciationLogEntry
	for _, entry := range m.logs {
		if entry.AssetID == assetID {
			out = append(out, entry)
		}
	}
	return out, nil
}

// stubLedger captures posted journals. Posts made inside a staged transaction
// only reach the committed list when the transaction applies.
type stubLedger struct {
	posted []journals.PostingInput
	err    error
	nextID int64
}

func (l *stubLedger) PostInTx(_ context.Context, tx journals.TxRepository, input journals.PostingInput) (journals.Journal, error) {
	if l.err != nil {
		return journals.Journal{}, l.err
	}
	if err := input.Validate(); err != nil {
		return journals.Journal{}, err
	}
	l.nextID++
	if staged, ok := tx.(*memLedgerTx); ok {
		staged.owner.posted = append(staged.owner.posted, input)
	} else {
		l.posted = append(l.posted, input)
	}
	return journals.Journal{ID: l.nextID, Status: input.Status}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(repo *memAssetRepo, ledger *stubLedger) *Service {
	repo.ledger = ledger
	return NewService(discardLogger(), repo, ledger, nil)
}

func registerVehicle(t *testing.T, svc *Service) FixedAsset {
	t.Helper()
	a, err := svc.Create(context.Background(), CreateInput{
		TenantID:             testTenant,
		ActorID:              9,
		Name:                 "Church van",
		AcquisitionDate:      time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		Cost:                 d("500000000"),
		Salvage:              d("50000000"),
		UsefulLifeMonths:     60,
		AssetAccountID:       10,
		ExpenseAccountID:     20,
		AccumulatedAccountID: 30,
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}
	return a
}

func TestPostMonthlySubmitsBalancedJournal(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	a := registerVehicle(t, svc)

	entry, err := svc.PostMonthly(context.Background(), testTenant, 9, a.ID, time.February, 2024)
	if err != nil {
		t.Fatalf("post monthly: %v", err)
	}
	if !entry.Amount.Equal(d("7500000")) {
		t.Fatalf("amount = %s", entry.Amount)
	}
	if !entry.BookValue.Equal(d("492500000")) {
		t.Fatalf("book value = %s", entry.BookValue)
	}
	if entry.JournalID == 0 {
		t.Fatalf("log must reference the posted journal")
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("expected one journal, got %d", len(ledger.posted))
	}
	j := ledger.posted[0]
	if j.Type != journals.TypeDepreciation || j.Status != journals.StatusApproved {
		t.Fatalf("journal type/status = %s/%s", j.Type, j.Status)
	}
	if j.Lines[0].AccountID != 20 || !j.Lines[0].Debit.Equal(d("7500000")) {
		t.Fatalf("expense leg wrong: %+v", j.Lines[0])
	}
	if j.Lines[1].AccountID != 30 || !j.Lines[1].Credit.Equal(d("7500000")) {
		t.Fatalf("accumulated leg wrong: %+v", j.Lines[1])
	}
	if j.Date != time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC) {
		t.Fatalf("journal dated %s, want end of month", j.Date)
	}
}

func TestPostMonthlyIdempotentPerPeriod(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	a := registerVehicle(t, svc)
	ctx := context.Background()

	if _, err := svc.PostMonthly(ctx, testTenant, 9, a.ID, time.February, 2024); err != nil {
		t.Fatalf("first post: %v", err)
	}
	if _, err := svc.PostMonthly(ctx, testTenant, 9, a.ID, time.February, 2024); !errors.Is(err, ErrAlreadyPosted) {
		t.Fatalf("expected ErrAlreadyPosted, got %v", err)
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("repeat must not post a second journal, got %d", len(ledger.posted))
	}
}

func TestPostMonthlyRollsBackJournalWhenLogFails(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	a := registerVehicle(t, svc)
	ctx := context.Background()

	// The log write dies after the journal was submitted. Both must vanish,
	// otherwise a rerun would double the expense.
	repo.failLog = errors.New("connection reset")
	if _, err := svc.PostMonthly(ctx, testTenant, 9, a.ID, time.February, 2024); err == nil {
		t.Fatalf("expected failure when the log write fails")
	}
	if len(ledger.posted) != 0 {
		t.Fatalf("journal must roll back with the failed log write, got %d", len(ledger.posted))
	}
	if has, _ := repo.HasLog(ctx, a.ID, 2024, time.February); has {
		t.Fatalf("no log expected after rollback")
	}

	entry, err := svc.PostMonthly(ctx, testTenant, 9, a.ID, time.February, 2024)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if len(ledger.posted) != 1 {
		t.Fatalf("retry must leave exactly one journal, got %d", len(ledger.posted))
	}
	if entry.JournalID == 0 {
		t.Fatalf("log must reference the committed journal")
	}
}

func TestPostMonthlyClampsFinalPeriod(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	// 100 depreciable over 7 months at 14.29; the 7th charge is 14.26.
	a, err := svc.Create(ctx, CreateInput{
		TenantID:             testTenant,
		ActorID:              9,
		Name:                 "Projector",
		AcquisitionDate:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:                 d("130"),
		Salvage:              d("30"),
		UsefulLifeMonths:     7,
		AssetAccountID:       10,
		ExpenseAccountID:     20,
		AccumulatedAccountID: 30,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	var last DepreciationLogEntry
	for i := 0; i < 7; i++ {
		last, err = svc.PostMonthly(ctx, testTenant, 9, a.ID, time.Month(int(time.February)+i), 2024)
		if err != nil {
			t.Fatalf("period %d: %v", i, err)
		}
	}
	if !last.Amount.Equal(d("14.26")) {
		t.Fatalf("final charge = %s", last.Amount)
	}
	if !last.Accumulated.Equal(d("100")) || !last.BookValue.Equal(d("30")) {
		t.Fatalf("final state = %s / %s", last.Accumulated, last.BookValue)
	}

	if _, err := svc.PostMonthly(ctx, testTenant, 9, a.ID, time.September, 2024); !errors.Is(err, ErrFullyDepreciated) {
		t.Fatalf("expected ErrFullyDepreciated, got %v", err)
	}
}

func TestRunMonthlySkipsAndContinues(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{}
	svc := newTestService(repo, ledger)
	ctx := context.Background()

	first := registerVehicle(t, svc)
	second, err := svc.Create(ctx, CreateInput{
		TenantID:             testTenant,
		ActorID:              9,
		Name:                 "Sound system",
		AcquisitionDate:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:                 d("24000"),
		Salvage:              d("0"),
		UsefulLifeMonths:     24,
		AssetAccountID:       10,
		ExpenseAccountID:     20,
		AccumulatedAccountID: 30,
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	// First asset already posted for the period.
	if _, err := svc.PostMonthly(ctx, testTenant, 9, first.ID, time.February, 2024); err != nil {
		t.Fatalf("pre-post: %v", err)
	}

	result, err := svc.RunMonthly(ctx, testTenant, 9, time.February, 2024)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Posted != 1 || result.Skipped != 1 || len(result.Failures) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if has, _ := repo.HasLog(ctx, second.ID, 2024, time.February); !has {
		t.Fatalf("second asset should be posted by the run")
	}
}

func TestRunMonthlyCapturesUnitFailures(t *testing.T) {
	repo := newMemAssetRepo()
	ledger := &stubLedger{err: errors.New("ledger unavailable")}
	svc := newTestService(repo, ledger)
	a := registerVehicle(t, svc)

	result, err := svc.RunMonthly(context.Background(), testTenant, 9, time.February, 2024)
	if err != nil {
		t.Fatalf("batch must not abort on unit failure: %v", err)
	}
	if result.Posted != 0 || len(result.Failures) != 1 {
		t.Fatalf("result = %+v", result)
	}
	if _, ok := result.Failures[a.ID]; !ok {
		t.Fatalf("failure not attributed to asset")
	}
}

func TestCreateValidatesInvariants(t *testing.T) {
	svc := newTestService(newMemAssetRepo(), &stubLedger{})
	base := CreateInput{
		TenantID:             testTenant,
		ActorID:              9,
		Name:                 "Van",
		AcquisitionDate:      time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:                 d("100"),
		Salvage:              d("10"),
		UsefulLifeMonths:     12,
		AssetAccountID:       1,
		ExpenseAccountID:     2,
		AccumulatedAccountID: 3,
	}

	bad := base
	bad.Cost = d("0")
	if _, err := svc.Create(context.Background(), bad); err == nil {
		t.Fatalf("zero cost accepted")
	}
	bad = base
	bad.Salvage = d("-1")
	if _, err := svc.Create(context.Background(), bad); err == nil {
		t.Fatalf("negative salvage accepted")
	}
	bad = base
	bad.UsefulLifeMonths = 0
	if _, err := svc.Create(context.Background(), bad); err == nil {
		t.Fatalf("zero life accepted")
	}
	bad = base
	bad.Salvage = d("100")
	if _, err := svc.Create(context.Background(), bad); err == nil {
		t.Fatalf("salvage >= cost accepted")
	}
}
