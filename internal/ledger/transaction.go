package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type identifies what a transaction does to a position.
type Type string

const (
	TypeBuy      Type = "buy"
	TypeSell     Type = "sell"
	TypeDividend Type = "dividend"
)

// ParseType validates a raw transaction type string.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeBuy, TypeSell, TypeDividend:
		return Type(s), nil
	}
	return "", fmt.Errorf("unknown transaction type %q", s)
}

// Transaction is one buy, sell or dividend event recorded against a
// portfolio. Immutable once written; removed only by explicit delete.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	PortfolioID string          `db:"portfolio_id" json:"portfolio_id"`
	Symbol      string          `db:"symbol" json:"symbol"`
	Type        Type            `db:"type" json:"type"`
	Timestamp   time.Time       `db:"timestamp" json:"timestamp"`
	Quantity    decimal.Decimal `db:"quantity" json:"quantity"`
	UnitPrice   decimal.Decimal `db:"unit_price" json:"unit_price"`
	Fees        decimal.Decimal `db:"fees" json:"fees"`

	// Seq is the insertion sequence, used to break ties between
	// transactions carrying the same timestamp so replays stay
	// reproducible.
	Seq int64 `db:"seq" json:"-"`
}

// Validate checks the shape of a transaction before it is written to
// the ledger. Oversell is checked separately against the current
// position, see CurrentQuantity.
func (t Transaction) Validate() error {
	if _, err := ParseType(string(t.Type)); err != nil {
		return err
	}
	if t.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !t.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", t.Quantity)
	}
	if t.UnitPrice.IsNegative() {
		return fmt.Errorf("unit price must not be negative, got %s", t.UnitPrice)
	}
	if t.Fees.IsNegative() {
		return fmt.Errorf("fees must not be negative, got %s", t.Fees)
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}
