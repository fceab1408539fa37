package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Portfolio is the owning aggregate for transactions and holdings.
type Portfolio struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Currency  string    `db:"currency" json:"currency"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Holding is the cached result of reducing one (portfolio, symbol)
// ledger. Never patched in place: the whole set for a portfolio is
// replaced atomically on refresh.
type Holding struct {
	PortfolioID string          `db:"portfolio_id" json:"portfolio_id"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	AverageCost decimal.Decimal `db:"average_cost" json:"average_cost"`
	LastUpdated time.Time       `db:"last_updated" json:"last_updated"`
}
