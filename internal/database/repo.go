package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"borsa/internal/indicators"
	"borsa/internal/ledger"
	"borsa/internal/marketdata"
)

// ErrNotFound is returned for lookups of entities that do not exist.
var ErrNotFound = errors.New("not found")

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// --- portfolios ---

func (r *Repo) CreatePortfolio(ctx context.Context, name, currency string) (string, error) {
	id := uuid.NewString()
	if currency == "" {
		currency = "TRY"
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO portfolios (id, name, currency, created_at) VALUES ($1, $2, $3, now())`,
		id, name, currency)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repo) GetPortfolio(ctx context.Context, id string) (Portfolio, error) {
	var p Portfolio
	err := r.db.GetContext(ctx, &p,
		`SELECT id, name, currency, created_at FROM portfolios WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Portfolio{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) ListPortfolioIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM portfolios ORDER BY created_at`); err != nil {
		return nil, err
	}
	return ids, nil
}

// --- instruments and index membership ---

func (r *Repo) EnsureInstrument(ctx context.Context, symbol, name string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO instruments (symbol, name) VALUES ($1, $2) ON CONFLICT (symbol) DO NOTHING`,
		symbol, name)
	return err
}

func (r *Repo) ListSymbols(ctx context.Context) ([]string, error) {
	symbols := []string{}
	if err := r.db.SelectContext(ctx, &symbols,
		`SELECT symbol FROM instruments WHERE is_active ORDER BY symbol`); err != nil {
		return nil, err
	}
	return symbols, nil
}

func (r *Repo) IndexMembers(ctx context.Context, indexName string) ([]string, error) {
	symbols := []string{}
	err := r.db.SelectContext(ctx, &symbols, `
		SELECT m.symbol FROM index_members m
		JOIN instruments i ON i.symbol = m.symbol
		WHERE m.index_name = $1 AND i.is_active
		ORDER BY m.symbol`, indexName)
	if err != nil {
		return nil, err
	}
	return symbols, nil
}

func (r *Repo) AddIndexMember(ctx context.Context, indexName, symbol string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO index_members (index_name, symbol) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		indexName, symbol)
	return err
}

// --- transaction ledger ---

func (r *Repo) CreateTransaction(ctx context.Context, tx ledger.Transaction) (string, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (id, portfolio_id, symbol, type, timestamp, quantity, unit_price, fees)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric)`,
		tx.ID, tx.PortfolioID, tx.Symbol, string(tx.Type), tx.Timestamp,
		tx.Quantity.String(), tx.UnitPrice.String(), tx.Fees.String())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return "", ErrNotFound
		}
		return "", err
	}
	return tx.ID, nil
}

func (r *Repo) DeleteTransaction(ctx context.Context, portfolioID, id string) (ledger.Transaction, error) {
	var tx ledger.Transaction
	err := r.db.GetContext(ctx, &tx, `
		DELETE FROM transactions WHERE id = $1 AND portfolio_id = $2
		RETURNING id, portfolio_id, symbol, type, timestamp, quantity, unit_price, fees, seq`,
		id, portfolioID)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Transaction{}, ErrNotFound
	}
	return tx, err
}

// ListTransactions returns the portfolio's full ledger in replay order:
// ascending timestamp, insertion sequence breaking ties.
func (r *Repo) ListTransactions(ctx context.Context, portfolioID string) ([]ledger.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT id, portfolio_id, symbol, type, timestamp, quantity, unit_price, fees, seq
		FROM transactions WHERE portfolio_id = $1
		ORDER BY timestamp, seq`, portfolioID)
}

func (r *Repo) ListTransactionsBySymbol(ctx context.Context, portfolioID, symbol string) ([]ledger.Transaction, error) {
	return r.listTransactions(ctx, `
		SELECT id, portfolio_id, symbol, type, timestamp, quantity, unit_price, fees, seq
		FROM transactions WHERE portfolio_id = $1 AND symbol = $2
		ORDER BY timestamp, seq`, portfolioID, symbol)
}

func (r *Repo) listTransactions(ctx context.Context, query string, args ...interface{}) ([]ledger.Transaction, error) {
	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []ledger.Transaction{}
	for rows.Next() {
		var tx ledger.Transaction
		if err := rows.StructScan(&tx); err != nil {
			r.log.Warnf("scan transaction failed: %v", err)
			continue
		}
		res = append(res, tx)
	}
	return res, rows.Err()
}

// --- price history ---

func (r *Repo) UpsertPrice(ctx context.Context, p marketdata.PricePoint) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO price_history (symbol, date, open, high, low, close, volume)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7)
		ON CONFLICT (symbol, date) DO UPDATE
		SET open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
		    close = EXCLUDED.close, volume = EXCLUDED.volume`,
		p.Symbol, marketdata.Day(p.Date), p.Open.String(), p.High.String(),
		p.Low.String(), p.Close.String(), p.Volume)
	return err
}

func (r *Repo) PriceOnOrBefore(ctx context.Context, symbol string, day time.Time) (marketdata.PricePoint, bool, error) {
	var p marketdata.PricePoint
	err := r.db.GetContext(ctx, &p, `
		SELECT symbol, date, open, high, low, close, volume
		FROM price_history WHERE symbol = $1 AND date <= $2
		ORDER BY date DESC LIMIT 1`, symbol, marketdata.Day(day))
	if errors.Is(err, sql.ErrNoRows) {
		return marketdata.PricePoint{}, false, nil
	}
	if err != nil {
		return marketdata.PricePoint{}, false, err
	}
	return p, true, nil
}

func (r *Repo) PriceSeries(ctx context.Context, symbol string, start, end time.Time) ([]marketdata.PricePoint, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT symbol, date, open, high, low, close, volume
		FROM price_history WHERE symbol = $1 AND date >= $2 AND date <= $3
		ORDER BY date`, symbol, marketdata.Day(start), marketdata.Day(end))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []marketdata.PricePoint{}
	for rows.Next() {
		var p marketdata.PricePoint
		if err := rows.StructScan(&p); err != nil {
			r.log.Warnf("scan price failed: %v", err)
			continue
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// --- derived-state sinks ---

// ReplaceHoldings swaps the portfolio's cached holdings in one
// transaction so readers never observe a partial set.
func (r *Repo) ReplaceHoldings(ctx context.Context, portfolioID string, holdings []Holding) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE portfolio_id = $1`, portfolioID); err != nil {
		return err
	}
	for _, h := range holdings {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO holdings (portfolio_id, symbol, quantity, average_cost, last_updated)
			VALUES ($1, $2, $3::numeric, $4::numeric, now())`,
			portfolioID, h.Symbol, h.Quantity.String(), h.AverageCost.String())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *Repo) GetHoldings(ctx context.Context, portfolioID string) ([]Holding, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT portfolio_id, symbol, quantity, average_cost, last_updated
		FROM holdings WHERE portfolio_id = $1 ORDER BY symbol`, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []Holding{}
	for rows.Next() {
		var h Holding
		if err := rows.StructScan(&h); err != nil {
			r.log.Warnf("scan holding failed: %v", err)
			continue
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

// StoreDerived upserts a computed result blob under (scopeKey, kind),
// e.g. (portfolioID, "performance") or (indexName, "correlations").
func (r *Repo) StoreDerived(ctx context.Context, scopeKey, kind string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO derived_results (scope_key, kind, payload, computed_at)
		VALUES ($1, $2, $3::jsonb, now())
		ON CONFLICT (scope_key, kind) DO UPDATE
		SET payload = EXCLUDED.payload, computed_at = EXCLUDED.computed_at`,
		scopeKey, kind, string(data))
	return err
}

// LoadDerived unmarshals a stored blob into out. The second return is
// false when nothing is cached under the key.
func (r *Repo) LoadDerived(ctx context.Context, scopeKey, kind string, out interface{}) (bool, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw,
		`SELECT payload FROM derived_results WHERE scope_key = $1 AND kind = $2`, scopeKey, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

func (r *Repo) DeleteDerived(ctx context.Context, scopeKey, kind string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM derived_results WHERE scope_key = $1 AND kind = $2`, scopeKey, kind)
	return err
}

// ReplaceIndicators swaps the indicator table for one symbol.
func (r *Repo) ReplaceIndicators(ctx context.Context, symbol string, rows []indicators.Row) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM technical_indicators WHERE symbol = $1`, symbol); err != nil {
		return err
	}
	for _, row := range rows {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO technical_indicators
			(symbol, date, rsi_14, macd, macd_signal, macd_histogram,
			 bollinger_upper, bollinger_middle, bollinger_lower,
			 ma_5, ma_10, ma_20, ma_50, ma_100, ma_200)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			symbol, row.Date, row.RSI14, row.MACD, row.MACDSignal, row.MACDHistogram,
			row.BollingerUpper, row.BollingerMiddle, row.BollingerLower,
			row.MA5, row.MA10, row.MA20, row.MA50, row.MA100, row.MA200)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LatestHoldingValue prices a cached holding set against the most
// recent prices, for quick portfolio totals without a full replay.
func (r *Repo) LatestHoldingValue(ctx context.Context, portfolioID string) (decimal.Decimal, error) {
	holdings, err := r.GetHoldings(ctx, portfolioID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, h := range holdings {
		price, found, err := r.PriceOnOrBefore(ctx, h.Symbol, time.Now().UTC())
		if err != nil {
			return decimal.Zero, err
		}
		if !found {
			r.log.Warnf("no price for symbol %s, excluded from total", h.Symbol)
			continue
		}
		total = total.Add(h.Quantity.Mul(price.Close))
	}
	return total, nil
}
