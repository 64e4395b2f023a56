package assets

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyDepreciation returns the straight-line monthly charge,
// (cost - salvage) / usefulLifeMonths, rounded to 2dp.
func MonthlyDepreciation(a FixedAsset) decimal.Decimal {
	return a.Cost.Sub(a.Salvage).DivRound(decimal.NewFromInt(int64(a.UsefulLifeMonths)), 2)
}

// ElapsedMonths counts calendar months between the acquisition date and
// asOf, clamped to [0, usefulLifeMonths].
func ElapsedMonths(a FixedAsset, asOf time.Time) int {
	months := (asOf.Year()-a.AcquisitionDate.Year())*12 + int(asOf.Month()) - int(a.AcquisitionDate.Month())
	if months < 0 {
		return 0
	}
	if months > a.UsefulLifeMonths {
		return a.UsefulLifeMonths
	}
	return months
}

// AccumulatedDepreciation is min(monthly * elapsed, cost - salvage). The cap
// absorbs rounding drift in the final period.
func AccumulatedDepreciation(a FixedAsset, asOf time.Time) decimal.Decimal {
	base := a.Cost.Sub(a.Salvage)
	accumulated := MonthlyDepreciation(a).Mul(decimal.NewFromInt(int64(ElapsedMonths(a, asOf))))
	if accumulated.GreaterThan(base) {
		return base
	}
	return accumulated
}

// BookValue is cost - accumulated depreciation as of a date.
func BookValue(a FixedAsset, asOf time.Time) decimal.Decimal {
	return a.Cost.Sub(AccumulatedDepreciation(a, asOf))
}
