package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shepherd-cms/shepherd/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListAccounts(ctx context.Context, tenantID uuid.UUID) ([]Account, error)
}

// AuditPort records registry events for the audit trail collaborator.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the chart of accounts.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	now   func() time.Time
}

// NewService constructs the registry service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create registers a new account. The code is normalized before uniqueness is
// checked and the hierarchy level is derived from the parent.
func (s *Service) Create(ctx context.Context, in CreateInput) (Account, error) {
	if err := in.Validate(); err != nil {
		return Account{}, err
	}
	acc := Account{
		TenantID:      in.TenantID,
		Code:          NormalizeCode(in.Code),
		Name:          strings.TrimSpace(in.Name),
		Type:          in.Type,
		NormalBalance: in.NormalBalance,
		IsActive:      true,
	}
	if acc.NormalBalance == "" {
		acc.NormalBalance = DefaultNormalBalance(in.Type)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.ParentID != nil {
			parent, err := tx.GetByID(ctx, in.TenantID, *in.ParentID)
			if err != nil {
				if errors.Is(err, ErrAccountNotFound) {
					return ErrInvalidParent
				}
				return err
			}
			acc.ParentID = in.ParentID
			acc.Level = parent.Level + 1
		}
		inserted, err := tx.Insert(ctx, acc)
		if err != nil {
			return err
		}
		acc = inserted
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.TenantID, in.ActorID, "account.create", acc.ID, nil, snapshot(acc))
	return acc, nil
}

// Update mutates an account. The code is immutable once a journal line
// references the account; reparenting walks the ancestor chain to reject
// cycles and recomputes levels for the moved subtree.
func (s *Service) Update(ctx context.Context, in UpdateInput) (Account, error) {
	if in.ID == 0 {
		return Account{}, errors.New("accounts: id required")
	}
	if in.TenantID == uuid.Nil {
		return Account{}, errors.New("accounts: tenant required")
	}
	var before, after Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetByID(ctx, in.TenantID, in.ID)
		if err != nil {
			return err
		}
		before = current
		updated := current
		if name := strings.TrimSpace(in.Name); name != "" {
			updated.Name = name
		}
		updated.IsActive = in.IsActive
		if code := NormalizeCode(in.Code); code != "" && code != current.Code {
			used, err := tx.HasJournalLines(ctx, in.TenantID, in.ID)
			if err != nil {
				return err
			}
			if used {
				return ErrCodeImmutable
			}
			updated.Code = code
		}
		if !sameParent(current.ParentID, in.ParentID) {
			level, err := s.resolveParent(ctx, tx, in.TenantID, in.ID, in.ParentID)
			if err != nil {
				return err
			}
			updated.ParentID = in.ParentID
			updated.Level = level
		}
		if err := tx.Update(ctx, updated); err != nil {
			return err
		}
		if updated.Level != current.Level {
			if err := s.reindexSubtree(ctx, tx, updated); err != nil {
				return err
			}
		}
		after = updated
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, in.TenantID, in.ActorID, "account.update", after.ID, snapshot(before), snapshot(after))
	return after, nil
}

// Delete removes an account that no journal line references, regardless of
// journal status.
func (s *Service) Delete(ctx context.Context, tenantID uuid.UUID, actorID, id int64) error {
	var before Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetByID(ctx, tenantID, id)
		if err != nil {
			return err
		}
		used, err := tx.HasJournalLines(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if used {
			return ErrAccountInUse
		}
		children, err := tx.HasChildren(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if children {
			return ErrAccountHasChildren
		}
		before = current
		return tx.Delete(ctx, tenantID, id)
	})
	if err != nil {
		return err
	}
	s.record(ctx, tenantID, actorID, "account.delete", id, snapshot(before), nil)
	return nil
}

// List returns the flat tenant chart ordered by code.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]Account, error) {
	return s.repo.ListAccounts(ctx, tenantID)
}

// Tree returns the chart assembled into a forest for reporting.
func (s *Service) Tree(ctx context.Context, tenantID uuid.UUID) ([]*Node, error) {
	accounts, err := s.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return BuildHierarchy(accounts), nil
}

// resolveParent validates the new parent and returns the level the account
// will occupy under it.
func (s *Service) resolveParent(ctx context.Context, tx TxRepository, tenantID uuid.UUID, accountID int64, parentID *int64) (int, error) {
	if parentID == nil {
		return 0, nil
	}
	parent, err := tx.GetByID(ctx, tenantID, *parentID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return 0, ErrInvalidParent
		}
		return 0, err
	}
	// Walk ancestors of the candidate parent; hitting the account itself
	// means the parent lives inside the account's own subtree.
	cursor := parent
	for {
		if cursor.ID == accountID {
			return 0, ErrCycleDetected
		}
		if cursor.ParentID == nil {
			break
		}
		next, err := tx.GetByID(ctx, tenantID, *cursor.ParentID)
		if err != nil {
			return 0, err
		}
		cursor = next
	}
	return parent.Level + 1, nil
}

// reindexSubtree recomputes levels below a reparented account in one pass
// over the tenant chart.
func (s *Service) reindexSubtree(ctx context.Context, tx TxRepository, root Account) error {
	all, err := tx.List(ctx, root.TenantID)
	if err != nil {
		return err
	}
	children := make(map[int64][]Account, len(all))
	for _, acc := range all {
		if acc.ParentID != nil {
			children[*acc.ParentID] = append(children[*acc.ParentID], acc)
		}
	}
	type frame struct {
		id    int64
		level int
	}
	queue := []frame{{id: root.ID, level: root.Level}}
	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]
		for _, child := range children[head.id] {
			level := head.level + 1
			if child.Level != level {
				if err := tx.UpdateLevel(ctx, root.TenantID, child.ID, level); err != nil {
					return err
				}
			}
			queue = append(queue, frame{id: child.ID, level: level})
		}
	}
	return nil
}

func (s *Service) record(ctx context.Context, tenantID uuid.UUID, actorID int64, action string, entityID int64, before, after map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: tenantID,
		ActorID:  actorID,
		Module:   "accounts",
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", entityID),
		Before:   before,
		After:    after,
		At:       s.now(),
	})
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func snapshot(acc Account) map[string]any {
	if acc.ID == 0 {
		return nil
	}
	snap := map[string]any{
		"code":           acc.Code,
		"name":           acc.Name,
		"type":           string(acc.Type),
		"normal_balance": string(acc.NormalBalance),
		"level":          acc.Level,
		"is_active":      acc.IsActive,
	}
	if acc.ParentID != nil {
		snap["parent_id"] = *acc.ParentID
	}
	return snap
}
