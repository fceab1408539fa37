// Package performance replays a portfolio's transaction ledger over a
// date range and values the resulting positions against the price
// history, producing daily snapshots and range-level metrics.
package performance

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"borsa/internal/ledger"
	"borsa/internal/marketdata"
)

// ErrInsufficientData means the range produced no valuable snapshot at
// all: no transactions, or no priced instrument on any day. Callers
// treat it as "no data", not as a failure.
var ErrInsufficientData = errors.New("insufficient data for performance calculation")

// PriceSource answers the most recent price at or before a day.
type PriceSource interface {
	PriceOnOrBefore(ctx context.Context, symbol string, day time.Time) (marketdata.PricePoint, bool, error)
}

// HoldingDetail is one instrument's slice of a daily snapshot.
type HoldingDetail struct {
	Symbol      string          `json:"symbol"`
	Quantity    decimal.Decimal `json:"quantity"`
	Value       decimal.Decimal `json:"value"`
	Cost        decimal.Decimal `json:"cost"`
	Price       decimal.Decimal `json:"price"`
	AverageCost decimal.Decimal `json:"avg_cost"`
	PriceDate   string          `json:"price_date"`
}

// Snapshot is the portfolio valuation for one day. Only days with at
// least one priced, open position are emitted.
type Snapshot struct {
	Date              string          `json:"date"`
	TotalValue        decimal.Decimal `json:"total_value"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	ProfitLoss        decimal.Decimal `json:"profit_loss"`
	ProfitLossPercent decimal.Decimal `json:"profit_loss_percent"`
	Holdings          []HoldingDetail `json:"holdings"`
}

// SymbolReturn ranks one holding by unrealized P/L percent.
type SymbolReturn struct {
	Symbol    string          `json:"symbol"`
	PLPercent decimal.Decimal `json:"pl_percent"`
}

// Metrics summarizes the whole range.
type Metrics struct {
	StartValue               decimal.Decimal `json:"start_value"`
	EndValue                 decimal.Decimal `json:"end_value"`
	OverallReturnPercent     decimal.Decimal `json:"overall_return_percent"`
	CurrentProfitLoss        decimal.Decimal `json:"current_profit_loss"`
	CurrentProfitLossPercent decimal.Decimal `json:"current_profit_loss_percent"`

	// Volatility is the population standard deviation of day-over-day
	// returns between consecutive emitted snapshots. Gaps where no
	// snapshot exists are skipped, which understates true volatility.
	Volatility float64 `json:"volatility"`

	TopPerformers    []SymbolReturn `json:"top_performers"`
	BottomPerformers []SymbolReturn `json:"bottom_performers"`
}

// DateRange echoes the analyzed window.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// Summary is the stored performance blob for one portfolio.
type Summary struct {
	PortfolioID string     `json:"portfolio_id"`
	Range       DateRange  `json:"date_range"`
	Metrics     Metrics    `json:"metrics"`
	Daily       []Snapshot `json:"daily_performance"`
}

// Calculator values portfolios against a price source.
type Calculator struct {
	prices PriceSource
	log    *logrus.Logger
}

func NewCalculator(prices PriceSource, log *logrus.Logger) *Calculator {
	return &Calculator{prices: prices, log: log}
}

// Run computes the summary for one portfolio over [start, end]. The
// transaction slice is the caller's snapshot of the ledger; it is read
// but never modified. Returns ErrInsufficientData when nothing can be
// valued in the range.
func (c *Calculator) Run(ctx context.Context, portfolioID string, txs []ledger.Transaction, start, end time.Time) (*Summary, error) {
	if len(txs) == 0 {
		return nil, ErrInsufficientData
	}

	start = marketdata.Day(start)
	end = marketdata.Day(end)
	bySymbol := ledger.GroupBySymbol(txs)

	var snapshots []Snapshot
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		snap, ok, err := c.valueDay(ctx, bySymbol, day)
		if err != nil {
			return nil, err
		}
		if ok {
			snapshots = append(snapshots, snap)
		}
	}

	if len(snapshots) == 0 {
		return nil, ErrInsufficientData
	}

	summary := &Summary{
		PortfolioID: portfolioID,
		Range: DateRange{
			Start: marketdata.DateKey(start),
			End:   marketdata.DateKey(end),
			Days:  int(end.Sub(start).Hours()/24) + 1,
		},
		Metrics: buildMetrics(snapshots),
		Daily:   snapshots,
	}
	return summary, nil
}

// valueDay reduces every instrument as of one day and prices the open
// positions. ok is false when no instrument contributed value, so the
// caller emits no snapshot for that day.
func (c *Calculator) valueDay(ctx context.Context, bySymbol map[string][]ledger.Transaction, day time.Time) (Snapshot, bool, error) {
	totalValue := decimal.Zero
	totalCost := decimal.Zero
	var holdings []HoldingDetail

	symbols := sortedKeys(bySymbol)
	for _, symbol := range symbols {
		pos := ledger.ReduceAsOf(bySymbol[symbol], day)
		if !pos.Open() {
			continue
		}

		price, found, err := c.prices.PriceOnOrBefore(ctx, symbol, day)
		if err != nil {
			return Snapshot{}, false, err
		}
		if !found {
			// No price at or before this day: the instrument drops out
			// of this day's aggregate entirely, cost included.
			c.log.Debugf("no price for %s on or before %s, excluded", symbol, marketdata.DateKey(day))
			continue
		}

		value := pos.Quantity.Mul(price.Close)
		holdings = append(holdings, HoldingDetail{
			Symbol:      symbol,
			Quantity:    pos.Quantity,
			Value:       value,
			Cost:        pos.TotalCost,
			Price:       price.Close,
			AverageCost: pos.AverageCost(),
			PriceDate:   marketdata.DateKey(price.Date),
		})
		totalValue = totalValue.Add(value)
		totalCost = totalCost.Add(pos.TotalCost)
	}

	if len(holdings) == 0 || totalValue.IsZero() {
		return Snapshot{}, false, nil
	}

	profitLoss := totalValue.Sub(totalCost)
	plPercent := decimal.Zero
	if totalCost.IsPositive() {
		plPercent = profitLoss.Div(totalCost).Mul(decimal.NewFromInt(100))
	}

	return Snapshot{
		Date:              marketdata.DateKey(day),
		TotalValue:        totalValue,
		TotalCost:         totalCost,
		ProfitLoss:        profitLoss,
		ProfitLossPercent: plPercent,
		Holdings:          holdings,
	}, true, nil
}

func buildMetrics(snapshots []Snapshot) Metrics {
	first := snapshots[0]
	last := snapshots[len(snapshots)-1]

	overall := decimal.Zero
	if first.TotalValue.IsPositive() {
		overall = last.TotalValue.Sub(first.TotalValue).
			Div(first.TotalValue).Mul(decimal.NewFromInt(100))
	}

	// Daily returns between consecutive emitted snapshots, on the
	// float path since only their dispersion matters.
	var returns []float64
	for i := 1; i < len(snapshots); i++ {
		prev := snapshots[i-1].TotalValue.InexactFloat64()
		curr := snapshots[i].TotalValue.InexactFloat64()
		if prev > 0 {
			returns = append(returns, (curr-prev)/prev*100)
		}
	}
	volatility := 0.0
	if len(returns) > 0 {
		volatility = stat.PopStdDev(returns, nil)
	}

	top, bottom := rankHoldings(last.Holdings)

	return Metrics{
		StartValue:               first.TotalValue,
		EndValue:                 last.TotalValue,
		OverallReturnPercent:     overall,
		CurrentProfitLoss:        last.ProfitLoss,
		CurrentProfitLossPercent: last.ProfitLossPercent,
		Volatility:               volatility,
		TopPerformers:            top,
		BottomPerformers:         bottom,
	}
}

// rankHoldings orders the latest day's holdings by unrealized P/L
// percent and returns up to three leaders and three laggards.
func rankHoldings(holdings []HoldingDetail) (top, bottom []SymbolReturn) {
	ranked := make([]SymbolReturn, 0, len(holdings))
	for _, h := range holdings {
		pl := decimal.Zero
		if h.AverageCost.IsPositive() {
			pl = h.Price.Sub(h.AverageCost).Div(h.AverageCost).Mul(decimal.NewFromInt(100))
		}
		ranked = append(ranked, SymbolReturn{Symbol: h.Symbol, PLPercent: pl})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PLPercent.GreaterThan(ranked[j].PLPercent)
	})

	n := len(ranked)
	topN := 3
	if topN > n {
		topN = n
	}
	top = append(top, ranked[:topN]...)
	bottom = append(bottom, ranked[n-topN:]...)
	return top, bottom
}

func sortedKeys(m map[string][]ledger.Transaction) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
