package ledger

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ErrInsufficientShares is returned at the ledger-write boundary when a
// sell would exceed the shares currently held. The reducer itself never
// returns it: for historical replay an oversell simply clamps the cost
// removal at 100%.
var ErrInsufficientShares = errors.New("insufficient shares for sale")

// Position is the running state of one (portfolio, symbol) pair:
// shares held and the cumulative cost attributed to them.
type Position struct {
	Quantity  decimal.Decimal
	TotalCost decimal.Decimal
}

// AverageCost is TotalCost spread over the current quantity. Zero for a
// closed position. Dividends can push the cost basis, and therefore the
// average cost, below zero; no floor is applied.
func (p Position) AverageCost() decimal.Decimal {
	if !p.Quantity.IsPositive() {
		return decimal.Zero
	}
	return p.TotalCost.Div(p.Quantity)
}

// Open reports whether any shares are held. A position whose quantity
// has been sold down to zero (or below) is closed and should not be
// persisted as a holding.
func (p Position) Open() bool {
	return p.Quantity.IsPositive()
}

func (p Position) apply(tx Transaction) Position {
	switch tx.Type {
	case TypeBuy:
		p.TotalCost = p.TotalCost.Add(tx.Quantity.Mul(tx.UnitPrice)).Add(tx.Fees)
		p.Quantity = p.Quantity.Add(tx.Quantity)
	case TypeSell:
		if p.Quantity.IsPositive() {
			proportion := tx.Quantity.Div(p.Quantity)
			if proportion.GreaterThan(decimal.NewFromInt(1)) {
				proportion = decimal.NewFromInt(1)
			}
			p.TotalCost = p.TotalCost.Sub(p.TotalCost.Mul(proportion))
			p.Quantity = p.Quantity.Sub(tx.Quantity)
		}
	case TypeDividend:
		// Cash dividend credited against cost basis; share count is
		// untouched. Large dividends can drive the basis negative.
		p.TotalCost = p.TotalCost.Sub(tx.Quantity.Mul(tx.UnitPrice))
	}
	return p
}

// Reduce folds a transaction history into the resulting position.
// The input is sorted by (timestamp, seq) before folding, so the result
// is a pure function of chronological order, not of slice order. The
// caller's slice is not modified.
func Reduce(txs []Transaction) Position {
	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Timestamp.Equal(ordered[j].Timestamp) {
			return ordered[i].Timestamp.Before(ordered[j].Timestamp)
		}
		return ordered[i].Seq < ordered[j].Seq
	})

	pos := Position{Quantity: decimal.Zero, TotalCost: decimal.Zero}
	for _, tx := range ordered {
		pos = pos.apply(tx)
	}
	return pos
}

// ReduceAsOf folds only the transactions dated on or before the given
// day (date-level cutoff, end of day inclusive).
func ReduceAsOf(txs []Transaction, day time.Time) Position {
	cutoff := day.Truncate(24 * time.Hour)
	filtered := make([]Transaction, 0, len(txs))
	for _, tx := range txs {
		txDay := tx.Timestamp.UTC().Truncate(24 * time.Hour)
		if !txDay.After(cutoff) {
			filtered = append(filtered, tx)
		}
	}
	return Reduce(filtered)
}

// GroupBySymbol splits a portfolio's transactions per instrument,
// preserving input order within each group.
func GroupBySymbol(txs []Transaction) map[string][]Transaction {
	groups := make(map[string][]Transaction)
	for _, tx := range txs {
		groups[tx.Symbol] = append(groups[tx.Symbol], tx)
	}
	return groups
}

// CurrentQuantity is the sell-boundary check quantity: total buys minus
// total sells, ignoring cost. This mirrors what a sale is validated
// against when a transaction is created.
func CurrentQuantity(txs []Transaction) decimal.Decimal {
	q := decimal.Zero
	for _, tx := range txs {
		switch tx.Type {
		case TypeBuy:
			q = q.Add(tx.Quantity)
		case TypeSell:
			q = q.Sub(tx.Quantity)
		}
	}
	return q
}

// CheckSell rejects a sale that exceeds the currently held quantity.
func CheckSell(existing []Transaction, sellQty decimal.Decimal) error {
	if CurrentQuantity(existing).LessThan(sellQty) {
		return ErrInsufficientShares
	}
	return nil
}
