package performance

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"borsa/internal/ledger"
	"borsa/internal/marketdata"
)

type fakePrices struct {
	series map[string][]marketdata.PricePoint
}

func (f fakePrices) PriceOnOrBefore(_ context.Context, symbol string, day time.Time) (marketdata.PricePoint, bool, error) {
	p, ok := marketdata.LatestOnOrBefore(f.series[symbol], day)
	return p, ok, nil
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func day(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return ts
}

func price(t *testing.T, symbol, date, close string) marketdata.PricePoint {
	t.Helper()
	c := d(t, close)
	return marketdata.PricePoint{
		Symbol: symbol, Date: day(t, date),
		Open: c, High: c, Low: c, Close: c, Volume: 1000,
	}
}

func buy(t *testing.T, symbol, date, qty, unitPrice, fees string, seq int64) ledger.Transaction {
	t.Helper()
	return ledger.Transaction{
		ID: "tx", PortfolioID: "p1", Symbol: symbol, Type: ledger.TypeBuy,
		Timestamp: day(t, date).Add(10 * time.Hour),
		Quantity:  d(t, qty), UnitPrice: d(t, unitPrice), Fees: d(t, fees), Seq: seq,
	}
}

func TestRun_NoTransactions(t *testing.T) {
	calc := NewCalculator(fakePrices{}, quietLogger())
	_, err := calc.Run(context.Background(), "p1", nil, day(t, "2024-03-01"), day(t, "2024-03-10"))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRun_NoPricedInstrument(t *testing.T) {
	calc := NewCalculator(fakePrices{series: map[string][]marketdata.PricePoint{}}, quietLogger())
	txs := []ledger.Transaction{buy(t, "AKBNK", "2024-03-01", "10", "10", "0", 1)}
	_, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-05"))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestRun_SnapshotsAndMetrics(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {
			price(t, "AKBNK", "2024-03-01", "100"),
			price(t, "AKBNK", "2024-03-02", "110"),
			price(t, "AKBNK", "2024-03-03", "99"),
		},
	}}
	calc := NewCalculator(prices, quietLogger())
	txs := []ledger.Transaction{buy(t, "AKBNK", "2024-03-01", "1", "100", "0", 1)}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-03"))
	require.NoError(t, err)
	require.Len(t, summary.Daily, 3)

	// Strictly increasing dates, no duplicates.
	for i := 1; i < len(summary.Daily); i++ {
		assert.Less(t, summary.Daily[i-1].Date, summary.Daily[i].Date)
	}

	assert.True(t, summary.Daily[0].TotalValue.Equal(d(t, "100")))
	assert.True(t, summary.Daily[1].TotalValue.Equal(d(t, "110")))
	assert.True(t, summary.Daily[2].TotalValue.Equal(d(t, "99")))

	m := summary.Metrics
	assert.True(t, m.StartValue.Equal(d(t, "100")))
	assert.True(t, m.EndValue.Equal(d(t, "99")))
	assert.True(t, m.OverallReturnPercent.Equal(d(t, "-1")))

	// Daily returns are +10% and -10%; their population std dev is 10.
	assert.InDelta(t, 10.0, m.Volatility, 1e-9)
}

func TestRun_SkipsDaysBeforeFirstTransaction(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "50")},
	}}
	calc := NewCalculator(prices, quietLogger())
	txs := []ledger.Transaction{buy(t, "AKBNK", "2024-03-03", "2", "50", "0", 1)}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-04"))
	require.NoError(t, err)
	require.Len(t, summary.Daily, 2)
	assert.Equal(t, "2024-03-03", summary.Daily[0].Date)
	assert.Equal(t, "2024-03-04", summary.Daily[1].Date)
}

func TestRun_StalePriceCarriesForward(t *testing.T) {
	// Only one price point exists; later days fall back to it.
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "40")},
	}}
	calc := NewCalculator(prices, quietLogger())
	txs := []ledger.Transaction{buy(t, "AKBNK", "2024-03-01", "1", "40", "0", 1)}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-03"))
	require.NoError(t, err)
	require.Len(t, summary.Daily, 3)
	for _, snap := range summary.Daily {
		assert.True(t, snap.TotalValue.Equal(d(t, "40")))
		require.Len(t, snap.Holdings, 1)
		assert.Equal(t, "2024-03-01", snap.Holdings[0].PriceDate)
	}
}

func TestRun_UnpricedInstrumentExcludedFromDay(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "10")},
		// GARAN has no price data at all.
	}}
	calc := NewCalculator(prices, quietLogger())
	txs := []ledger.Transaction{
		buy(t, "AKBNK", "2024-03-01", "1", "10", "0", 1),
		buy(t, "GARAN", "2024-03-01", "1", "20", "0", 2),
	}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-01"))
	require.NoError(t, err)
	require.Len(t, summary.Daily, 1)
	require.Len(t, summary.Daily[0].Holdings, 1)
	assert.Equal(t, "AKBNK", summary.Daily[0].Holdings[0].Symbol)
	// GARAN's cost vanishes from the day along with its value.
	assert.True(t, summary.Daily[0].TotalCost.Equal(d(t, "10")))
}

func TestRun_ZeroCostBasisYieldsZeroPercent(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "5")},
	}}
	calc := NewCalculator(prices, quietLogger())
	// Free shares: cost basis is zero, percent must not divide by zero.
	txs := []ledger.Transaction{buy(t, "AKBNK", "2024-03-01", "10", "0", "0", 1)}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-01"))
	require.NoError(t, err)
	snap := summary.Daily[0]
	assert.True(t, snap.TotalCost.IsZero())
	assert.True(t, snap.ProfitLoss.Equal(d(t, "50")))
	assert.True(t, snap.ProfitLossPercent.IsZero())
}

func TestRun_ClosedPositionNotValued(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "10")},
		"GARAN": {price(t, "GARAN", "2024-03-01", "20")},
	}}
	calc := NewCalculator(prices, quietLogger())
	sell := ledger.Transaction{
		ID: "tx", PortfolioID: "p1", Symbol: "GARAN", Type: ledger.TypeSell,
		Timestamp: day(t, "2024-03-02").Add(10 * time.Hour),
		Quantity:  d(t, "1"), UnitPrice: d(t, "21"), Fees: decimal.Zero, Seq: 3,
	}
	txs := []ledger.Transaction{
		buy(t, "AKBNK", "2024-03-01", "1", "10", "0", 1),
		buy(t, "GARAN", "2024-03-01", "1", "20", "0", 2),
		sell,
	}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-02"))
	require.NoError(t, err)
	require.Len(t, summary.Daily, 2)
	assert.Len(t, summary.Daily[0].Holdings, 2)
	// GARAN fully liquidated on day two.
	require.Len(t, summary.Daily[1].Holdings, 1)
	assert.Equal(t, "AKBNK", summary.Daily[1].Holdings[0].Symbol)
}

func TestRun_RanksPerformers(t *testing.T) {
	prices := fakePrices{series: map[string][]marketdata.PricePoint{
		"AKBNK": {price(t, "AKBNK", "2024-03-01", "20")}, // +100% over cost 10
		"GARAN": {price(t, "GARAN", "2024-03-01", "10")}, // -50% over cost 20
	}}
	calc := NewCalculator(prices, quietLogger())
	txs := []ledger.Transaction{
		buy(t, "AKBNK", "2024-03-01", "1", "10", "0", 1),
		buy(t, "GARAN", "2024-03-01", "1", "20", "0", 2),
	}

	summary, err := calc.Run(context.Background(), "p1", txs, day(t, "2024-03-01"), day(t, "2024-03-01"))
	require.NoError(t, err)
	m := summary.Metrics
	require.NotEmpty(t, m.TopPerformers)
	require.NotEmpty(t, m.BottomPerformers)
	assert.Equal(t, "AKBNK", m.TopPerformers[0].Symbol)
	assert.Equal(t, "GARAN", m.BottomPerformers[len(m.BottomPerformers)-1].Symbol)
}
