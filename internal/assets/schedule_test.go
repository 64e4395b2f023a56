package assets

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func vehicleAsset() FixedAsset {
	return FixedAsset{
		AcquisitionDate:  time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		Cost:             d("500000000"),
		Salvage:          d("50000000"),
		UsefulLifeMonths: 60,
		Method:           MethodStraightLine,
	}
}

func TestStraightLineSchedule(t *testing.T) {
	a := vehicleAsset()
	assert.True(t, MonthlyDepreciation(a).Equal(d("7500000")), "monthly = %s", MonthlyDepreciation(a))

	twelveMonths := a.AcquisitionDate.AddDate(1, 0, 0)
	assert.Equal(t, 12, ElapsedMonths(a, twelveMonths))
	assert.True(t, AccumulatedDepreciation(a, twelveMonths).Equal(d("90000000")))
	assert.True(t, BookValue(a, twelveMonths).Equal(d("410000000")))
}

func TestElapsedMonthsClamped(t *testing.T) {
	a := vehicleAsset()

	beforeAcquisition := a.AcquisitionDate.AddDate(0, -3, 0)
	assert.Equal(t, 0, ElapsedMonths(a, beforeAcquisition))

	wellPastLife := a.AcquisitionDate.AddDate(10, 0, 0)
	assert.Equal(t, 60, ElapsedMonths(a, wellPastLife))
	assert.True(t, AccumulatedDepreciation(a, wellPastLife).Equal(d("450000000")),
		"accumulated never exceeds cost - salvage")
	assert.True(t, BookValue(a, wellPastLife).Equal(d("50000000")),
		"book value floors at salvage")
}

func TestAccumulatedCapAbsorbsRoundingDrift(t *testing.T) {
	// 100 / 7 months = 14.29 monthly; 7 x 14.29 = 100.03 > 100, so the cap
	// truncates the final period.
	a := FixedAsset{
		AcquisitionDate:  time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		Cost:             d("130"),
		Salvage:          d("30"),
		UsefulLifeMonths: 7,
	}
	end := a.AcquisitionDate.AddDate(0, 7, 0)
	assert.True(t, AccumulatedDepreciation(a, end).Equal(d("100")))
	assert.True(t, BookValue(a, end).Equal(d("30")))
}
