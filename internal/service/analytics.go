// Package service orchestrates the analytics computations: it snapshots
// ledger and price data from the repository, runs the pure calculators,
// and writes the derived results back through the atomic sinks.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"borsa/internal/correlation"
	"borsa/internal/database"
	"borsa/internal/indicators"
	"borsa/internal/ledger"
	"borsa/internal/marketdata"
	"borsa/internal/performance"
)

// Options carries the default analysis parameters.
type Options struct {
	PerformanceDays int
	CorrelationDays int
	Index           string
	MinPairs        int
}

// Kind keys for the derived-result cache.
const (
	KindPerformance  = "performance"
	KindCorrelations = "correlations"
)

type Analytics struct {
	repo *database.Repo
	calc *performance.Calculator
	log  *logrus.Logger
	opts Options
}

func NewAnalytics(repo *database.Repo, log *logrus.Logger, opts Options) *Analytics {
	return &Analytics{
		repo: repo,
		calc: performance.NewCalculator(repo, log),
		log:  log,
		opts: opts,
	}
}

// AddTransaction validates and records a ledger event. A sell that
// exceeds the currently held quantity is rejected here, at the write
// boundary; the reducer itself stays tolerant for historical replay.
// Derived state for the portfolio is refreshed afterwards.
func (a *Analytics) AddTransaction(ctx context.Context, tx ledger.Transaction) (string, error) {
	if err := tx.Validate(); err != nil {
		return "", err
	}
	if _, err := a.repo.GetPortfolio(ctx, tx.PortfolioID); err != nil {
		return "", err
	}
	if err := a.repo.EnsureInstrument(ctx, tx.Symbol, tx.Symbol); err != nil {
		return "", err
	}

	if tx.Type == ledger.TypeSell {
		existing, err := a.repo.ListTransactionsBySymbol(ctx, tx.PortfolioID, tx.Symbol)
		if err != nil {
			return "", err
		}
		if err := ledger.CheckSell(existing, tx.Quantity); err != nil {
			return "", err
		}
	}

	id, err := a.repo.CreateTransaction(ctx, tx)
	if err != nil {
		return "", err
	}
	a.afterLedgerChange(ctx, tx.PortfolioID)
	return id, nil
}

// RemoveTransaction deletes a ledger event and refreshes derived state.
func (a *Analytics) RemoveTransaction(ctx context.Context, portfolioID, txID string) error {
	if _, err := a.repo.DeleteTransaction(ctx, portfolioID, txID); err != nil {
		return err
	}
	a.afterLedgerChange(ctx, portfolioID)
	return nil
}

// afterLedgerChange recomputes holdings and invalidates the cached
// performance summary; the next read recomputes it.
func (a *Analytics) afterLedgerChange(ctx context.Context, portfolioID string) {
	if _, err := a.RefreshHoldings(ctx, portfolioID); err != nil {
		a.log.Errorf("refresh holdings for %s failed: %v", portfolioID, err)
	}
	if err := a.repo.DeleteDerived(ctx, portfolioID, KindPerformance); err != nil {
		a.log.Warnf("invalidate performance cache for %s failed: %v", portfolioID, err)
	}
}

// RefreshHoldings rebuilds the portfolio's holdings wholesale from the
// full transaction history and atomically replaces the cached set.
// Closed positions are dropped, not stored as zero rows.
func (a *Analytics) RefreshHoldings(ctx context.Context, portfolioID string) ([]database.Holding, error) {
	txs, err := a.repo.ListTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	holdings := []database.Holding{}
	for symbol, group := range ledger.GroupBySymbol(txs) {
		pos := ledger.Reduce(group)
		if !pos.Open() {
			continue
		}
		holdings = append(holdings, database.Holding{
			PortfolioID: portfolioID,
			Symbol:      symbol,
			Quantity:    pos.Quantity,
			AverageCost: pos.AverageCost(),
		})
	}

	if err := a.repo.ReplaceHoldings(ctx, portfolioID, holdings); err != nil {
		return nil, err
	}
	return holdings, nil
}

// RefreshPerformance recomputes the performance summary over the last
// `days` days and stores it. ErrInsufficientData passes through for the
// caller to absorb as "no data".
func (a *Analytics) RefreshPerformance(ctx context.Context, portfolioID string, days int) (*performance.Summary, error) {
	if days <= 0 {
		days = a.opts.PerformanceDays
	}
	end := marketdata.Day(time.Now())
	start := end.AddDate(0, 0, -days)

	txs, err := a.repo.ListTransactions(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	summary, err := a.calc.Run(ctx, portfolioID, txs, start, end)
	if err != nil {
		return nil, err
	}
	if err := a.repo.StoreDerived(ctx, portfolioID, KindPerformance, summary); err != nil {
		return nil, fmt.Errorf("store performance summary: %w", err)
	}
	return summary, nil
}

// Performance returns the cached summary, computing it on first read.
func (a *Analytics) Performance(ctx context.Context, portfolioID string, days int) (*performance.Summary, error) {
	var summary performance.Summary
	found, err := a.repo.LoadDerived(ctx, portfolioID, KindPerformance, &summary)
	if err != nil {
		return nil, err
	}
	if found {
		return &summary, nil
	}
	return a.RefreshPerformance(ctx, portfolioID, days)
}

// RefreshCorrelations recomputes the pairwise correlation report for an
// index universe over the last `days` days and stores it.
func (a *Analytics) RefreshCorrelations(ctx context.Context, indexName string, days, minPairs int) (*correlation.Result, error) {
	if indexName == "" {
		indexName = a.opts.Index
	}
	if days <= 0 {
		days = a.opts.CorrelationDays
	}
	if minPairs <= 0 {
		minPairs = a.opts.MinPairs
	}

	members, err := a.repo.IndexMembers(ctx, indexName)
	if err != nil {
		return nil, err
	}

	end := marketdata.Day(time.Now())
	start := end.AddDate(0, 0, -days)
	series := make(map[string][]marketdata.PricePoint, len(members))
	for _, symbol := range members {
		points, err := a.repo.PriceSeries(ctx, symbol, start, end)
		if err != nil {
			return nil, err
		}
		if len(points) < minPairs {
			a.log.Debugf("skipping %s: %d price points, need %d", symbol, len(points), minPairs)
			continue
		}
		series[symbol] = points
	}

	rng := correlation.DateRange{
		Start: marketdata.DateKey(start),
		End:   marketdata.DateKey(end),
		Days:  days,
	}
	result, err := correlation.Compute(indexName, series, rng, minPairs)
	if err != nil {
		return nil, err
	}
	if err := a.repo.StoreDerived(ctx, indexName, KindCorrelations, result); err != nil {
		return nil, fmt.Errorf("store correlation result: %w", err)
	}
	return result, nil
}

// Correlations returns the cached report for an index, computing it on
// first read.
func (a *Analytics) Correlations(ctx context.Context, indexName string) (*correlation.Result, error) {
	var result correlation.Result
	found, err := a.repo.LoadDerived(ctx, indexName, KindCorrelations, &result)
	if err != nil {
		return nil, err
	}
	if found {
		return &result, nil
	}
	return a.RefreshCorrelations(ctx, indexName, 0, 0)
}

// RefreshIndicators recomputes the technical indicator table for one
// symbol from its full recorded price history.
func (a *Analytics) RefreshIndicators(ctx context.Context, symbol string) error {
	end := marketdata.Day(time.Now())
	start := end.AddDate(-10, 0, 0)
	points, err := a.repo.PriceSeries(ctx, symbol, start, end)
	if err != nil {
		return err
	}

	rows, err := indicators.Compute(points)
	if err != nil {
		return err
	}
	return a.repo.ReplaceIndicators(ctx, symbol, rows)
}

// RefreshAll is the scheduled batch job: holdings and performance for
// every portfolio, correlations for the configured index, indicators
// for every instrument. Per-entity failures are logged and skipped so
// one bad portfolio cannot stall the batch.
func (a *Analytics) RefreshAll(ctx context.Context) {
	started := time.Now()

	portfolios, err := a.repo.ListPortfolioIDs(ctx)
	if err != nil {
		a.log.Errorf("list portfolios failed: %v", err)
		return
	}
	for _, id := range portfolios {
		if _, err := a.RefreshHoldings(ctx, id); err != nil {
			a.log.Errorf("refresh holdings for %s failed: %v", id, err)
			continue
		}
		if _, err := a.RefreshPerformance(ctx, id, a.opts.PerformanceDays); err != nil {
			if errors.Is(err, performance.ErrInsufficientData) {
				a.log.Infof("portfolio %s has no computable performance, skipped", id)
				continue
			}
			a.log.Errorf("refresh performance for %s failed: %v", id, err)
		}
	}

	if _, err := a.RefreshCorrelations(ctx, a.opts.Index, a.opts.CorrelationDays, a.opts.MinPairs); err != nil {
		if errors.Is(err, correlation.ErrInsufficientData) {
			a.log.Infof("index %s has too few priced members for correlations, skipped", a.opts.Index)
		} else {
			a.log.Errorf("refresh correlations for %s failed: %v", a.opts.Index, err)
		}
	}

	symbols, err := a.repo.ListSymbols(ctx)
	if err != nil {
		a.log.Errorf("list symbols failed: %v", err)
		return
	}
	for _, symbol := range symbols {
		if err := a.RefreshIndicators(ctx, symbol); err != nil {
			if errors.Is(err, indicators.ErrInsufficientHistory) {
				a.log.Debugf("symbol %s has too little history for indicators, skipped", symbol)
				continue
			}
			a.log.Errorf("refresh indicators for %s failed: %v", symbol, err)
		}
	}

	a.log.Infof("batch refresh finished in %s", time.Since(started).Round(time.Millisecond))
}
