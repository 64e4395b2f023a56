package budgets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBudget(ctx context.Context, tenantID uuid.UUID, id int64) (Budget, error)
	ListBudgets(ctx context.Context, tenantID uuid.UUID) ([]Budget, error)
}

// AuditPort records budget events for the audit trail collaborator.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service implements the budget engine.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the budget service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create saves a draft budget. Monthly maps are accepted unbalanced here;
// the tolerance check runs at activation.
func (s *Service) Create(ctx context.Context, input CreateInput) (Budget, error) {
	if err := input.Validate(); err != nil {
		return Budget{}, err
	}
	var budget Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertBudget(ctx, Budget{
			TenantID:   input.TenantID,
			FiscalYear: input.FiscalYear,
			Name:       input.Name,
			Status:     StatusDraft,
			CreatedBy:  input.ActorID,
		})
		if err != nil {
			return err
		}
		if err := tx.ReplaceLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		inserted.Lines = toBudgetLines(inserted.ID, input.Lines)
		budget = inserted
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, input.TenantID, input.ActorID, "budget.create", budget.ID, nil, snapshot(budget))
	return budget, nil
}

// UpdateLines replaces the lines of a draft budget.
func (s *Service) UpdateLines(ctx context.Context, tenantID uuid.UUID, actorID, budgetID int64, lines []LineInput) (Budget, error) {
	if err := validateLines(lines); err != nil {
		return Budget{}, err
	}
	var before, after Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBudgetForUpdate(ctx, tenantID, budgetID)
		if err != nil {
			return err
		}
		if current.Status != StatusDraft {
			return ErrBudgetActive
		}
		if err := tx.ReplaceLines(ctx, budgetID, lines); err != nil {
			return err
		}
		before = current
		after = current
		after.Lines = toBudgetLines(budgetID, lines)
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, tenantID, actorID, "budget.update", budgetID, snapshot(before), snapshot(after))
	return after, nil
}

// Activate transitions a draft budget to active after the tolerance check.
func (s *Service) Activate(ctx context.Context, tenantID uuid.UUID, actorID, budgetID int64) (Budget, error) {
	var before, after Budget
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetBudgetForUpdate(ctx, tenantID, budgetID)
		if err != nil {
			return err
		}
		if current.Status == StatusActive {
			return ErrAlreadyActive
		}
		if err := ValidateActivation(current); err != nil {
			return err
		}
		if err := tx.UpdateStatus(ctx, tenantID, budgetID, StatusActive); err != nil {
			return err
		}
		before = current
		after = current
		after.Status = StatusActive
		return nil
	})
	if err != nil {
		return Budget{}, err
	}
	s.record(ctx, tenantID, actorID, "budget.activate", budgetID, snapshot(before), snapshot(after))
	return after, nil
}

// Get returns one budget with lines.
func (s *Service) Get(ctx context.Context, tenantID uuid.UUID, budgetID int64) (Budget, error) {
	return s.repo.GetBudget(ctx, tenantID, budgetID)
}

// List returns budget headers for a tenant.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Budget, error) {
	return s.repo.ListBudgets(ctx, tenantID)
}

// MonthlyFor returns the effective distribution for every line of a budget,
// keyed by account. Derived, never persisted.
func (s *Service) MonthlyFor(ctx context.Context, tenantID uuid.UUID, budgetID int64) (map[int64]map[time.Month]decimal.Decimal, error) {
	b, err := s.repo.GetBudget(ctx, tenantID, budgetID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]map[time.Month]decimal.Decimal, len(b.Lines))
	for _, line := range b.Lines {
		out[line.AccountID] = DistributeMonthly(line)
	}
	return out, nil
}

func toBudgetLines(budgetID int64, lines []LineInput) []BudgetLine {
	out := make([]BudgetLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, BudgetLine{
			BudgetID:  budgetID,
			AccountID: line.AccountID,
			Annual:    line.Annual,
			Monthly:   line.Monthly,
		})
	}
	return out
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, actorID int64, action string, entityID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Module:   "budgets",
		Action:   action,
		Entity:   "budget",
		EntityID: fmt.Sprintf("%d", entityID),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func snapshot(b Budget) map[string]any {
	if b.ID == 0 {
		return nil
	}
	lines := make([]map[string]any, 0, len(b.Lines))
	for _, line := range b.Lines {
		lines = append(lines, map[string]any{
			"account_id": line.AccountID,
			"annual":     line.Annual.String(),
		})
	}
	return map[string]any{
		"fiscal_year": b.FiscalYear,
		"name":        b.Name,
		"status":      string(b.Status),
		"lines":       lines,
	}
}
