package periods

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type memPeriodRepo struct {
	periods map[string]FiscalPeriod
}

func newMemPeriodRepo() *memPeriodRepo {
	return &memPeriodRepo{periods: map[string]FiscalPeriod{}}
}

func key(tenantID uuid.UUID, month time.Month, year int) string {
	return tenantID.String() + "-" + time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01")
}

func (r *memPeriodRepo) Get(_ context.Context, tenantID uuid.UUID, month time.Month, year int) (FiscalPeriod, error) {
	k := key(tenantID, month, year)
	if p, ok := r.periods[k]; ok {
		return p, nil
	}
	p := FiscalPeriod{TenantID: tenantID, Month: month, Year: year, Status: StatusOpen}
	r.periods[k] = p
	return p, nil
}

func (r *memPeriodRepo) List(_ context.Context, tenantID uuid.UUID, year int) ([]FiscalPeriod, error) {
	var out []FiscalPeriod
	for _, p := range r.periods {
		if p.TenantID == tenantID && p.Year == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *memPeriodRepo) Transition(ctx context.Context, tenantID uuid.UUID, month time.Month, year int, target Status, actorID int64) (FiscalPeriod, error) {
	p, err := r.Get(ctx, tenantID, month, year)
	if err != nil {
		return FiscalPeriod{}, err
	}
	if !CanTransition(p.Status, target) {
		return FiscalPeriod{}, ErrInvalidStateTransition
	}
	p.Status = target
	r.periods[key(tenantID, month, year)] = p
	return p, nil
}

var testTenant = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func TestLookupAutoVivifiesOpen(t *testing.T) {
	svc := NewService(newMemPeriodRepo(), nil)
	p, err := svc.Get(context.Background(), testTenant, time.March, 2025)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if p.Status != StatusOpen {
		t.Fatalf("expected auto-vivified period to be open, got %s", p.Status)
	}
}

func TestFullLifecycle(t *testing.T) {
	svc := NewService(newMemPeriodRepo(), nil)
	ctx := context.Background()
	p, err := svc.Close(ctx, testTenant, 1, time.March, 2025)
	if err != nil || p.Status != StatusClosed {
		t.Fatalf("close: %v status=%s", err, p.Status)
	}
	p, err = svc.Lock(ctx, testTenant, 1, time.March, 2025)
	if err != nil || p.Status != StatusLocked {
		t.Fatalf("lock: %v status=%s", err, p.Status)
	}
	p, err = svc.Unlock(ctx, testTenant, 1, time.March, 2025)
	if err != nil || p.Status != StatusOpen {
		t.Fatalf("unlock: %v status=%s", err, p.Status)
	}
}

func TestIllegalTransitionsRejected(t *testing.T) {
	svc := NewService(newMemPeriodRepo(), nil)
	ctx := context.Background()
	if _, err := svc.Lock(ctx, testTenant, 1, time.March, 2025); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("lock on open period: expected ErrInvalidStateTransition, got %v", err)
	}
	if _, err := svc.Unlock(ctx, testTenant, 1, time.March, 2025); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("unlock on open period: expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestRejectsMonthOutOfRange(t *testing.T) {
	svc := NewService(newMemPeriodRepo(), nil)
	if _, err := svc.Get(context.Background(), testTenant, time.Month(13), 2025); err == nil {
		t.Fatalf("expected month validation error")
	}
}
