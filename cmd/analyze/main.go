// Command analyze runs the batch analytics jobs from the command line:
// holdings recomputation, performance tracking, index correlations and
// technical indicators, for one entity or for everything.
package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"borsa/internal/config"
	"borsa/internal/correlation"
	"borsa/internal/database"
	"borsa/internal/performance"
	"borsa/internal/service"
)

func main() {
	task := flag.String("task", "all", "one of: holdings, performance, correlations, indicators, all")
	portfolio := flag.String("portfolio", "", "portfolio UUID (holdings/performance; empty means every portfolio)")
	index := flag.String("index", "", "index universe for correlations (default from config)")
	symbol := flag.String("symbol", "", "instrument symbol for indicators (empty means every instrument)")
	days := flag.Int("days", 0, "lookback days (default from config)")
	minPairs := flag.Int("min-pairs", 0, "minimum overlapping observations per correlation pair")
	flag.Parse()

	logger := logrus.New()
	_ = godotenv.Load()

	cfg, err := config.Load("config.yaml")
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal(err)
	}

	db, err := sqlx.Connect("postgres", cfg.Database.PostgresURL)
	if err != nil {
		logger.Fatalf("failed to connect to db: %v", err)
	}
	defer db.Close()

	repo := database.New(db, logger)
	analytics := service.NewAnalytics(repo, logger, service.Options{
		PerformanceDays: cfg.Analytics.PerformanceDays,
		CorrelationDays: cfg.Analytics.CorrelationDays,
		Index:           cfg.Analytics.Index,
		MinPairs:        cfg.Analytics.MinPairs,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	switch *task {
	case "holdings":
		for _, id := range targetPortfolios(ctx, logger, repo, *portfolio) {
			holdings, err := analytics.RefreshHoldings(ctx, id)
			if err != nil {
				logger.Errorf("refresh holdings for %s failed: %v", id, err)
				continue
			}
			logger.Infof("portfolio %s: %d holdings", id, len(holdings))
			for _, h := range holdings {
				logger.Infof("  %s qty=%s avg_cost=%s", h.Symbol, h.Quantity.StringFixed(6), h.AverageCost.StringFixed(4))
			}
		}
	case "performance":
		for _, id := range targetPortfolios(ctx, logger, repo, *portfolio) {
			summary, err := analytics.RefreshPerformance(ctx, id, *days)
			if errors.Is(err, performance.ErrInsufficientData) {
				logger.Infof("portfolio %s: no computable performance", id)
				continue
			}
			if err != nil {
				logger.Errorf("refresh performance for %s failed: %v", id, err)
				continue
			}
			m := summary.Metrics
			logger.Infof("portfolio %s: %d snapshots, return %s%%, volatility %.4f",
				id, len(summary.Daily), m.OverallReturnPercent.StringFixed(2), m.Volatility)
		}
	case "correlations":
		result, err := analytics.RefreshCorrelations(ctx, *index, *days, *minPairs)
		if errors.Is(err, correlation.ErrInsufficientData) {
			logger.Info("not enough priced instruments for correlation analysis")
			return
		}
		if err != nil {
			logger.Fatalf("refresh correlations failed: %v", err)
		}
		logger.Infof("%s: %d instruments, average market correlation %.4f",
			result.Universe, result.InstrumentsAnalyzed, result.AverageMarketCorrelation)
		for _, p := range result.MostPositivePairs {
			logger.Infof("  +%s & %s: %.4f", p.Pair[0], p.Pair[1], p.Correlation)
		}
		for _, p := range result.MostNegativePairs {
			logger.Infof("  -%s & %s: %.4f", p.Pair[0], p.Pair[1], p.Correlation)
		}
	case "indicators":
		symbols := []string{*symbol}
		if *symbol == "" {
			var err error
			if symbols, err = repo.ListSymbols(ctx); err != nil {
				logger.Fatalf("list symbols failed: %v", err)
			}
		}
		for _, s := range symbols {
			if err := analytics.RefreshIndicators(ctx, s); err != nil {
				logger.Warnf("refresh indicators for %s failed: %v", s, err)
			}
		}
	case "all":
		analytics.RefreshAll(ctx)
	default:
		logger.Fatalf("unknown task %q", *task)
	}
}

func targetPortfolios(ctx context.Context, logger *logrus.Logger, repo *database.Repo, portfolio string) []string {
	if portfolio != "" {
		if _, err := repo.GetPortfolio(ctx, portfolio); err != nil {
			logger.Fatalf("portfolio %s not found", portfolio)
		}
		return []string{portfolio}
	}
	ids, err := repo.ListPortfolioIDs(ctx)
	if err != nil {
		logger.Fatalf("list portfolios failed: %v", err)
	}
	return ids
}
