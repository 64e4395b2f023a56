package accounts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type memRepo struct {
	accounts map[int64]Account
	inUse    map[int64]bool
	nextID   int64
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: map[int64]Account{}, inUse: map[int64]bool{}, nextID: 1}
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, r)
}

func (r *memRepo) ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	return r.List(ctx, tenantID)
}

func (r *memRepo) GetByID(_ context.Context, tenantID uuid.UUID, id int64) (Account, error) {
	acc, ok := r.accounts[id]
	if !ok || acc.TenantID != tenantID {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (r *memRepo) Insert(_ context.Context, acc Account) (Account, error) {
	for _, existing := range r.accounts {
		if existing.TenantID == acc.TenantID && existing.Code == acc.Code {
			return Account{}, ErrDuplicateCode
		}
	}
	acc.ID = r.nextID
	r.nextID++
	r.accounts[acc.ID] = acc
	return acc, nil
}

func (r *memRepo) Update(_ context.Context, acc Account) error {
	if _, ok := r.accounts[acc.ID]; !ok {
		return ErrAccountNotFound
	}
	r.accounts[acc.ID] = acc
	return nil
}

func (r *memRepo) UpdateLevel(_ context.Context, _ uuid.UUID, id int64, level int) error {
	acc := r.accounts[id]
	acc.Level = level
	r.accounts[id] = acc
	return nil
}

func (r *memRepo) Delete(_ context.Context, _ uuid.UUID, id int64) error {
	delete(r.accounts, id)
	return nil
}

func (r *memRepo) List(_ context.Context, tenantID uuid.UUID) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		if acc.TenantID == tenantID {
			out = append(out, acc)
		}
	}
	return out, nil
}

func (r *memRepo) HasJournalLines(_ context.Context, _ uuid.UUID, id int64) (bool, error) {
	return r.inUse[id], nil
}

func (r *memRepo) HasChildren(_ context.Context, _ uuid.UUID, id int64) (bool, error) {
	for _, acc := range r.accounts {
		if acc.ParentID != nil && *acc.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

var testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func TestCreateNormalizesCodeAndDefaultsBalance(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	acc, err := svc.Create(context.Background(), CreateInput{
		TenantID: testTenant,
		Code:     "  1000a ",
		Name:     "Cash",
		Type:     TypeAsset,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if acc.Code != "1000A" {
		t.Fatalf("expected normalized code, got %q", acc.Code)
	}
	if acc.NormalBalance != NormalDebit {
		t.Fatalf("expected debit normal balance for asset, got %s", acc.NormalBalance)
	}
	if acc.Level != 0 {
		t.Fatalf("root account must sit at level 0")
	}
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	in := CreateInput{TenantID: testTenant, Code: "1000", Name: "Cash", Type: TypeAsset}
	if _, err := svc.Create(context.Background(), in); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := svc.Create(context.Background(), in); !errors.Is(err, ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}
}

func TestCreateComputesLevelFromParent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	parent, err := svc.Create(context.Background(), CreateInput{TenantID: testTenant, Code: "1000", Name: "Assets", Type: TypeAsset})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	child, err := svc.Create(context.Background(), CreateInput{TenantID: testTenant, Code: "1100", Name: "Cash", Type: TypeAsset, ParentID: &parent.ID})
	if err != nil {
		t.Fatalf("create child: %v", err)
	}
	if child.Level != 1 {
		t.Fatalf("expected level 1, got %d", child.Level)
	}
}

func TestCreateRejectsMissingParent(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	missing := int64(42)
	_, err := svc.Create(context.Background(), CreateInput{TenantID: testTenant, Code: "1100", Name: "Cash", Type: TypeAsset, ParentID: &missing})
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent, got %v", err)
	}
}

func TestCreateRejectsParentFromOtherTenant(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	other := uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8")
	parent, err := svc.Create(context.Background(), CreateInput{TenantID: other, Code: "1000", Name: "Assets", Type: TypeAsset})
	if err != nil {
		t.Fatalf("create parent: %v", err)
	}
	_, err = svc.Create(context.Background(), CreateInput{TenantID: testTenant, Code: "1100", Name: "Cash", Type: TypeAsset, ParentID: &parent.ID})
	if !errors.Is(err, ErrInvalidParent) {
		t.Fatalf("expected ErrInvalidParent for cross-tenant parent, got %v", err)
	}
}

func TestUpdateRejectsCycle(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1000", Name: "A", Type: TypeAsset})
	b, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1100", Name: "B", Type: TypeAsset, ParentID: &a.ID})
	c, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1110", Name: "C", Type: TypeAsset, ParentID: &b.ID})
	_, err := svc.Update(ctx, UpdateInput{TenantID: testTenant, ID: a.ID, Name: "A", ParentID: &c.ID, IsActive: true})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestUpdateReparentRecomputesSubtreeLevels(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	a, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1000", Name: "A", Type: TypeAsset})
	b, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "2000", Name: "B", Type: TypeAsset})
	c, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "2100", Name: "C", Type: TypeAsset, ParentID: &b.ID})
	moved, err := svc.Update(ctx, UpdateInput{TenantID: testTenant, ID: b.ID, Name: "B", ParentID: &a.ID, IsActive: true})
	if err != nil {
		t.Fatalf("reparent: %v", err)
	}
	if moved.Level != 1 {
		t.Fatalf("expected moved level 1, got %d", moved.Level)
	}
	child, _ := repo.GetByID(ctx, testTenant, c.ID)
	if child.Level != 2 {
		t.Fatalf("expected descendant level 2, got %d", child.Level)
	}
}

func TestUpdateCodeImmutableOnceJournalled(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	acc, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1000", Name: "Cash", Type: TypeAsset})
	repo.inUse[acc.ID] = true
	_, err := svc.Update(ctx, UpdateInput{TenantID: testTenant, ID: acc.ID, Code: "1001", Name: "Cash", IsActive: true})
	if !errors.Is(err, ErrCodeImmutable) {
		t.Fatalf("expected ErrCodeImmutable, got %v", err)
	}
}

func TestDeleteRejectsAccountInUse(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	acc, _ := svc.Create(ctx, CreateInput{TenantID: testTenant, Code: "1000", Name: "Cash", Type: TypeAsset})
	repo.inUse[acc.ID] = true
	if err := svc.Delete(ctx, testTenant, 1, acc.ID); !errors.Is(err, ErrAccountInUse) {
		t.Fatalf("expected ErrAccountInUse, got %v", err)
	}
}
