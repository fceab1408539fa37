package correlation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"borsa/internal/marketdata"
)

var testRange = DateRange{Start: "2024-03-01", End: "2024-03-31", Days: 30}

// series builds a daily price series starting 2024-03-01 from closes.
func series(symbol string, closes ...float64) []marketdata.PricePoint {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]marketdata.PricePoint, len(closes))
	for i, c := range closes {
		d := decimal.NewFromFloat(c)
		out[i] = marketdata.PricePoint{
			Symbol: symbol, Date: start.AddDate(0, 0, i),
			Open: d, High: d, Low: d, Close: d, Volume: 100,
		}
	}
	return out
}

func TestCompute_PerfectCorrelation(t *testing.T) {
	input := map[string][]marketdata.PricePoint{
		"AKBNK": series("AKBNK", 1, 2, 3, 4, 5),
		"GARAN": series("GARAN", 10, 20, 30, 40, 50), // scaled copy
		"THYAO": series("THYAO", 5, 4, 3, 2, 1),      // exact inverse
	}

	result, err := Compute("BIST100", input, testRange, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, result.InstrumentsAnalyzed)

	byPair := map[[2]string]float64{}
	for _, p := range result.MostPositivePairs {
		byPair[p.Pair] = p.Correlation
	}
	assert.InDelta(t, 1.0, byPair[[2]string{"AKBNK", "GARAN"}], 1e-9)
	assert.InDelta(t, -1.0, byPair[[2]string{"AKBNK", "THYAO"}], 1e-9)
	assert.InDelta(t, -1.0, byPair[[2]string{"GARAN", "THYAO"}], 1e-9)

	// Pair ranking: positive list is highest first, negative lowest first.
	assert.Equal(t, [2]string{"AKBNK", "GARAN"}, result.MostPositivePairs[0].Pair)
	assert.InDelta(t, -1.0, result.MostNegativePairs[0].Correlation, 1e-9)

	// mean of (1, -1, -1) pairwise correlations
	assert.InDelta(t, -1.0/3.0, result.AverageMarketCorrelation, 1e-4)
}

func TestCompute_Symmetry(t *testing.T) {
	input := map[string][]marketdata.PricePoint{
		"A": series("A", 1, 3, 2, 5, 4),
		"B": series("B", 2, 1, 4, 3, 6),
	}
	result, err := Compute("TEST", input, testRange, 3)
	require.NoError(t, err)

	aDetail := result.Details["A"]
	bDetail := result.Details["B"]
	require.Len(t, aDetail.TopPositive, 1)
	require.Len(t, bDetail.TopPositive, 1)
	assert.Equal(t, "B", aDetail.TopPositive[0].Symbol)
	assert.Equal(t, "A", bDetail.TopPositive[0].Symbol)
	assert.Equal(t, aDetail.TopPositive[0].Correlation, bDetail.TopPositive[0].Correlation)
}

func TestCompute_ShortSeriesExcludedBeforePairing(t *testing.T) {
	input := map[string][]marketdata.PricePoint{
		"A": series("A", 1, 2, 3, 4, 5),
		"B": series("B", 2, 3), // below min pairs
	}
	_, err := Compute("TEST", input, testRange, 5)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCompute_UniverseOfOne(t *testing.T) {
	input := map[string][]marketdata.PricePoint{
		"A": series("A", 1, 2, 3, 4, 5),
	}
	_, err := Compute("TEST", input, testRange, 3)
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestCompute_OverlapBelowMinPairsProducesNoPair(t *testing.T) {
	// Both series qualify by length but share only two dates.
	a := series("A", 1, 2, 3, 4, 5)
	b := series("B", 10, 20, 30, 40, 50)
	for i := range b {
		// Shift B three days later, leaving a two-day overlap.
		b[i].Date = b[i].Date.AddDate(0, 0, 3)
	}
	input := map[string][]marketdata.PricePoint{"A": a, "B": b}

	result, err := Compute("TEST", input, testRange, 3)
	require.NoError(t, err)
	assert.Empty(t, result.MostPositivePairs)
	assert.Empty(t, result.MostNegativePairs)
	assert.Empty(t, result.Details)
	assert.Zero(t, result.AverageMarketCorrelation)
}

func TestCompute_ConstantSeriesExcludedFromRankings(t *testing.T) {
	input := map[string][]marketdata.PricePoint{
		"A": series("A", 1, 2, 3, 4, 5),
		"B": series("B", 2, 4, 6, 8, 10),
		"C": series("C", 7, 7, 7, 7, 7), // zero variance, undefined correlation
	}
	result, err := Compute("TEST", input, testRange, 3)
	require.NoError(t, err)

	// Only the A-B pair is rankable; C contributes nothing.
	require.Len(t, result.MostPositivePairs, 1)
	assert.Equal(t, [2]string{"A", "B"}, result.MostPositivePairs[0].Pair)
	_, hasC := result.Details["C"]
	assert.False(t, hasC)
	assert.InDelta(t, 1.0, result.AverageMarketCorrelation, 1e-4)
}

func TestCompute_CorrelatesOverlapOnly(t *testing.T) {
	// A has two extra leading dates that B lacks; the correlation must
	// be computed over the shared window, where the series move
	// together perfectly.
	a := series("A", 100, 50, 1, 2, 3, 4, 5)
	b := series("B", 10, 20, 30, 40, 50)
	for i := range b {
		b[i].Date = b[i].Date.AddDate(0, 0, 2)
	}
	input := map[string][]marketdata.PricePoint{"A": a, "B": b}

	result, err := Compute("TEST", input, testRange, 3)
	require.NoError(t, err)
	require.Len(t, result.MostPositivePairs, 1)
	assert.InDelta(t, 1.0, result.MostPositivePairs[0].Correlation, 1e-9)
}
