package periods

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status enumerates fiscal period lifecycle states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
	StatusLocked Status = "LOCKED"
)

// transitions is the closed set of legal lifecycle edges. Locked periods can
// only be reopened by an explicit administrative unlock.
var transitions = map[Status]map[Status]bool{
	StatusOpen:   {StatusClosed: true},
	StatusClosed: {StatusLocked: true},
	StatusLocked: {StatusOpen: true},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to Status) bool {
	return transitions[from][to]
}

// FiscalPeriod is a calendar month within a tenant's accounting calendar.
// Periods auto-vivify as OPEN on first reference.
type FiscalPeriod struct {
	ID        int64
	TenantID  uuid.UUID
	Month     time.Month
	Year      int
	Status    Status
	ClosedBy  *int64
	ClosedAt  *time.Time
	LockedBy  *int64
	LockedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanPost reports whether journals may be created or edited in the period.
func (p FiscalPeriod) CanPost() bool {
	return p.Status != StatusLocked
}

// CanApprove reports whether journals may be approved in the period.
func (p FiscalPeriod) CanApprove() bool {
	return p.Status != StatusLocked
}

var (
	// ErrInvalidStateTransition indicates an illegal lifecycle edge.
	ErrInvalidStateTransition = errors.New("periods: invalid state transition")
	// ErrPeriodLocked indicates the period rejects journal mutation.
	ErrPeriodLocked = errors.New("periods: period locked")
	// ErrPeriodClosed indicates an operation requiring an open period.
	ErrPeriodClosed = errors.New("periods: period closed")
	// ErrPeriodNotFound indicates a missing period record.
	ErrPeriodNotFound = errors.New("periods: period not found")
)

// ValidMonth reports whether month falls in [1, 12].
func ValidMonth(month int) bool {
	return month >= 1 && month <= 12
}
