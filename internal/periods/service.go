package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

// RepositoryPort abstracts period persistence.
type RepositoryPort interface {
	Get(ctx context.Context, tenantID uuid.UUID, month time.Month, year int) (FiscalPeriod, error)
	List(ctx context.Context, tenantID uuid.UUID, year int) ([]FiscalPeriod, error)
	Transition(ctx context.Context, tenantID uuid.UUID, month time.Month, year int, target Status, actorID int64) (FiscalPeriod, error)
}

// AuditPort records period lifecycle events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the fiscal period lifecycle.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the period service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns the period for (month, year), vivifying it as OPEN when absent.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, month time.Month, year int) (FiscalPeriod, error) {
	if err := validateRef(tenantID, month, year); err != nil {
		return FiscalPeriod{}, err
	}
	return s.repo.Get(ctx, tenantID, month, year)
}

// List returns period records for a year.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, year int) ([]FiscalPeriod, error) {
	if tenantID == uuid.Nil {
		return nil, shared.ErrTenantRequired
	}
	return s.repo.List(ctx, tenantID, year)
}

// Close transitions an open period to closed.
func (s *Service) Close(ctx context.Context, tenantID uuid.UUID, actorID int64, month time.Month, year int) (FiscalPeriod, error) {
	return s.transition(ctx, tenantID, actorID, month, year, StatusClosed, "period.close")
}

// Lock transitions a closed period to locked.
func (s *Service) Lock(ctx context.Context, tenantID uuid.UUID, actorID int64, month time.Month, year int) (FiscalPeriod, error) {
	return s.transition(ctx, tenantID, actorID, month, year, StatusLocked, "period.lock")
}

// Unlock reopens a locked period. Administrative escape hatch; every use is
// audited.
func (s *Service) Unlock(ctx context.Context, tenantID uuid.UUID, actorID int64, month time.Month, year int) (FiscalPeriod, error) {
	return s.transition(ctx, tenantID, actorID, month, year, StatusOpen, "period.unlock")
}

func (s *Service) transition(ctx context.Context, tenantID uuid.UUID, actorID int64, month time.Month, year int, target Status, action string) (FiscalPeriod, error) {
	if err := validateRef(tenantID, month, year); err != nil {
		return FiscalPeriod{}, err
	}
	before, err := s.repo.Get(ctx, tenantID, month, year)
	if err != nil {
		return FiscalPeriod{}, err
	}
	period, err := s.repo.Transition(ctx, tenantID, month, year, target, actorID)
	if err != nil {
		return FiscalPeriod{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			TenantID: tenantID,
			ActorID:  actorID,
			Module:   "periods",
			Action:   action,
			Entity:   "fiscal_period",
			EntityID: fmt.Sprintf("%d-%02d", year, int(month)),
			Before:   map[string]any{"status": string(before.Status)},
			After:    map[string]any{"status": string(period.Status)},
			At:       s.now(),
		})
	}
	return period, nil
}

func validateRef(tenantID uuid.UUID, month time.Month, year int) error {
	if tenantID == uuid.Nil {
		return shared.ErrTenantRequired
	}
	if !ValidMonth(int(month)) {
		return errors.New("periods: month out of range")
	}
	if year < 1900 || year > 9999 {
		return errors.New("periods: year out of range")
	}
	return nil
}
