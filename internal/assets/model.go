package assets

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepreciationMethod enumerates supported methods. Straight-line only;
// declining-balance is out of scope.
type DepreciationMethod string

const MethodStraightLine DepreciationMethod = "STRAIGHT_LINE"

// FixedAsset is a depreciable asset linked to its ledger accounts.
type FixedAsset struct {
	ID                   int64
	TenantID             uuid.UUID
	Name                 string
	AcquisitionDate      time.Time
	Cost                 decimal.Decimal
	Salvage              decimal.Decimal
	UsefulLifeMonths     int
	Method               DepreciationMethod
	AssetAccountID       int64
	ExpenseAccountID     int64
	AccumulatedAccountID int64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DepreciationLogEntry records one posted period for one asset. Write-once
// per (asset, year, month).
type DepreciationLogEntry struct {
	ID          int64
	AssetID     int64
	Year        int
	Month       time.Month
	Amount      decimal.Decimal
	Accumulated decimal.Decimal
	BookValue   decimal.Decimal
	JournalID   int64
	CreatedAt   time.Time
}

var (
	// ErrAssetNotFound indicates a missing asset.
	ErrAssetNotFound = errors.New("assets: asset not found")
	// ErrAlreadyPosted indicates depreciation already posted for (asset, period).
	ErrAlreadyPosted = errors.New("assets: depreciation already posted for period")
	// ErrFullyDepreciated indicates the asset carries no remaining depreciable base.
	ErrFullyDepreciated = errors.New("assets: asset fully depreciated")
	// ErrAssetInactive indicates a depreciation run against an inactive asset.
	ErrAssetInactive = errors.New("assets: asset inactive")
)

// CreateInput groups fields required to register an asset.
type CreateInput struct {
	TenantID             uuid.UUID
	ActorID              int64
	Name                 string
	AcquisitionDate      time.Time
	Cost                 decimal.Decimal
	Salvage              decimal.Decimal
	UsefulLifeMonths     int
	AssetAccountID       int64
	ExpenseAccountID     int64
	AccumulatedAccountID int64
}

// Validate enforces the asset invariants: cost > 0, salvage >= 0, useful
// life > 0, salvage below cost.
func (in CreateInput) Validate() error {
	if in.TenantID == uuid.Nil {
		return errors.New("assets: tenant required")
	}
	if strings.TrimSpace(in.Name) == "" {
		return errors.New("assets: name required")
	}
	if in.AcquisitionDate.IsZero() {
		return errors.New("assets: acquisition date required")
	}
	if !in.Cost.IsPositive() {
		return errors.New("assets: cost must be positive")
	}
	if in.Salvage.IsNegative() {
		return errors.New("assets: salvage must not be negative")
	}
	if in.Salvage.GreaterThanOrEqual(in.Cost) {
		return errors.New("assets: salvage must be below cost")
	}
	if in.UsefulLifeMonths <= 0 {
		return errors.New("assets: useful life must be positive")
	}
	if in.AssetAccountID == 0 || in.ExpenseAccountID == 0 || in.AccumulatedAccountID == 0 {
		return errors.New("assets: linked accounts required")
	}
	return nil
}
