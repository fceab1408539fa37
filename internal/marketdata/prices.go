package marketdata

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one day's bar for an instrument. Supplied by the
// market-data loader; append-only, one row per (symbol, date).
type PricePoint struct {
	Symbol string          `db:"symbol" json:"symbol"`
	Date   time.Time       `db:"date" json:"date"`
	Open   decimal.Decimal `db:"open" json:"open"`
	High   decimal.Decimal `db:"high" json:"high"`
	Low    decimal.Decimal `db:"low" json:"low"`
	Close  decimal.Decimal `db:"close" json:"close"`
	Volume int64           `db:"volume" json:"volume"`
}

// Day normalizes a timestamp to its UTC calendar day.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// DateKey renders a day the way price rows are keyed and serialized.
func DateKey(t time.Time) string {
	return Day(t).Format("2006-01-02")
}

// Closes extracts the close column as floats for the statistics path
// (indicators, correlations). Money accounting stays on decimal.
func Closes(points []PricePoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close.InexactFloat64()
	}
	return out
}

// LatestOnOrBefore scans a date-ascending series for the most recent
// point dated on or before day. Returns false if the series has no
// point that early.
func LatestOnOrBefore(points []PricePoint, day time.Time) (PricePoint, bool) {
	cutoff := Day(day)
	found := false
	var best PricePoint
	for _, p := range points {
		if Day(p.Date).After(cutoff) {
			break
		}
		best = p
		found = true
	}
	return best, found
}
