package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"borsa/internal/marketdata"
)

func TestSMA(t *testing.T) {
	out := SMA([]float64{1, 2, 3, 4, 5}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	assert.InDelta(t, 2, out[2], 1e-12)
	assert.InDelta(t, 3, out[3], 1e-12)
	assert.InDelta(t, 4, out[4], 1e-12)
}

func TestEMA(t *testing.T) {
	// span 3 gives alpha 0.5; seeded with the first value.
	out := EMA([]float64{2, 4, 4}, 3)
	assert.InDelta(t, 2, out[0], 1e-12)
	assert.InDelta(t, 3, out[1], 1e-12)
	assert.InDelta(t, 3.5, out[2], 1e-12)
}

func TestRollingStd(t *testing.T) {
	out := RollingStd([]float64{1, 2, 3, 5}, 3)
	assert.True(t, math.IsNaN(out[0]))
	assert.True(t, math.IsNaN(out[1]))
	// sample std of {1,2,3} is 1
	assert.InDelta(t, 1, out[2], 1e-12)
	// sample std of {2,3,5} is sqrt(7/3)
	assert.InDelta(t, math.Sqrt(7.0/3.0), out[3], 1e-12)
}

func TestRSI(t *testing.T) {
	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = float64(i + 1)
	}
	out := RSI(rising, 14)
	assert.True(t, math.IsNaN(out[13]))
	assert.InDelta(t, 100, out[14], 1e-12)

	flat := make([]float64, 20)
	for i := range flat {
		flat[i] = 7
	}
	out = RSI(flat, 14)
	assert.True(t, math.IsNaN(out[19]))

	// Equal total gains and losses balance to RSI 50.
	alternating := make([]float64, 20)
	for i := range alternating {
		if i%2 == 0 {
			alternating[i] = 10
		} else {
			alternating[i] = 12
		}
	}
	out = RSI(alternating, 14)
	assert.InDelta(t, 50, out[14], 1e-9)
}

func TestCompute_RequiresHistory(t *testing.T) {
	points := pricePoints(t, MinHistory-1)
	_, err := Compute(points)
	assert.ErrorIs(t, err, ErrInsufficientHistory)
}

func TestCompute_WarmupRowsDropped(t *testing.T) {
	n := 250
	points := pricePoints(t, n)
	rows, err := Compute(points)
	require.NoError(t, err)

	// MA200 fills at index 199; every earlier row is warmup.
	require.Len(t, rows, n-(MinHistory-1))
	first := rows[0]
	assert.Equal(t, points[MinHistory-1].Date.UTC().Truncate(24*time.Hour), first.Date)

	for _, row := range rows {
		assert.False(t, math.IsNaN(row.MA200))
		assert.False(t, math.IsNaN(row.RSI14))
		assert.Equal(t, row.MA20, row.BollingerMiddle)
		assert.Greater(t, row.BollingerUpper, row.BollingerMiddle)
		assert.Less(t, row.BollingerLower, row.BollingerMiddle)
		assert.InDelta(t, row.MACD-row.MACDSignal, row.MACDHistogram, 1e-12)
	}

	// Strictly rising closes: RSI pinned at 100 and the short average
	// leads the long one.
	assert.InDelta(t, 100, rows[0].RSI14, 1e-9)
	assert.Greater(t, rows[0].MA5, rows[0].MA200)
}

func pricePoints(t *testing.T, n int) []marketdata.PricePoint {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]marketdata.PricePoint, n)
	for i := 0; i < n; i++ {
		c := decimal.NewFromInt(int64(100 + i))
		points[i] = marketdata.PricePoint{
			Symbol: "AKBNK", Date: start.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, Volume: 1000,
		}
	}
	return points
}
