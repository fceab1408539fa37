// Package correlation computes pairwise Pearson correlations of
// closing-price series across an instrument universe, typically the
// membership of a named index.
package correlation

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"borsa/internal/marketdata"
)

// ErrInsufficientData means fewer than two instruments qualified after
// the min-pairs filter, so no pairwise correlation is possible.
var ErrInsufficientData = errors.New("insufficient data for correlation analysis")

// PeerCorrelation is one neighbor in an instrument's ranking.
type PeerCorrelation struct {
	Symbol      string  `json:"symbol"`
	Correlation float64 `json:"correlation"`
}

// PairCorrelation is one unordered instrument pair.
type PairCorrelation struct {
	Pair        [2]string `json:"pair"`
	Correlation float64   `json:"correlation"`
}

// InstrumentDetail summarizes one instrument against the rest of the
// universe.
type InstrumentDetail struct {
	TopPositive        []PeerCorrelation `json:"top_positive"`
	TopNegative        []PeerCorrelation `json:"top_negative"`
	AverageCorrelation float64           `json:"average_correlation"`
}

// DateRange echoes the analyzed window.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
	Days  int    `json:"days"`
}

// Result is the full correlation report for a universe.
type Result struct {
	Universe                 string                      `json:"universe"`
	Range                    DateRange                   `json:"date_range"`
	InstrumentsAnalyzed      int                         `json:"instruments_analyzed"`
	AverageMarketCorrelation float64                     `json:"average_market_correlation"`
	MostPositivePairs        []PairCorrelation           `json:"most_positively_correlated_pairs"`
	MostNegativePairs        []PairCorrelation           `json:"most_negatively_correlated_pairs"`
	Details                  map[string]InstrumentDetail `json:"instrument_details"`
}

// Compute runs the engine over close-price series keyed by symbol.
// Instruments with fewer than minPairs observations are dropped before
// any pairing; each surviving pair is correlated only over the dates
// both sides actually have, and pairs overlapping on fewer than
// minPairs dates produce no correlation at all. Undefined correlations
// (constant series) are likewise excluded rather than ranked as NaN.
func Compute(universe string, series map[string][]marketdata.PricePoint, rng DateRange, minPairs int) (*Result, error) {
	if minPairs < 2 {
		minPairs = 2
	}

	// Index close by date per qualifying symbol.
	closes := make(map[string]map[string]float64)
	for symbol, points := range series {
		if len(points) < minPairs {
			continue
		}
		byDate := make(map[string]float64, len(points))
		for _, p := range points {
			byDate[marketdata.DateKey(p.Date)] = p.Close.InexactFloat64()
		}
		closes[symbol] = byDate
	}
	if len(closes) < 2 {
		return nil, ErrInsufficientData
	}

	symbols := make([]string, 0, len(closes))
	for s := range closes {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	pairs := make([]PairCorrelation, 0, len(symbols)*(len(symbols)-1)/2)
	perSymbol := make(map[string][]PeerCorrelation, len(symbols))
	for i, a := range symbols {
		for _, b := range symbols[i+1:] {
			corr, ok := pairwise(closes[a], closes[b], minPairs)
			if !ok {
				continue
			}
			corr = round4(corr)
			pairs = append(pairs, PairCorrelation{Pair: [2]string{a, b}, Correlation: corr})
			perSymbol[a] = append(perSymbol[a], PeerCorrelation{Symbol: b, Correlation: corr})
			perSymbol[b] = append(perSymbol[b], PeerCorrelation{Symbol: a, Correlation: corr})
		}
	}

	details := make(map[string]InstrumentDetail, len(symbols))
	for _, symbol := range symbols {
		peers := perSymbol[symbol]
		if len(peers) == 0 {
			continue
		}
		details[symbol] = summarize(peers)
	}

	result := &Result{
		Universe:            universe,
		Range:               rng,
		InstrumentsAnalyzed: len(closes),
		Details:             details,
	}
	result.MostPositivePairs, result.MostNegativePairs = rankPairs(pairs)
	result.AverageMarketCorrelation = round4(meanPairs(pairs))
	return result, nil
}

// pairwise aligns two series on their shared dates and correlates the
// overlap. ok is false when the overlap is too small or the
// correlation is undefined.
func pairwise(a, b map[string]float64, minPairs int) (float64, bool) {
	dates := make([]string, 0, len(a))
	for d := range a {
		if _, shared := b[d]; shared {
			dates = append(dates, d)
		}
	}
	if len(dates) < minPairs {
		return 0, false
	}
	sort.Strings(dates)

	xs := make([]float64, len(dates))
	ys := make([]float64, len(dates))
	for i, d := range dates {
		xs[i] = a[d]
		ys[i] = b[d]
	}

	corr := stat.Correlation(xs, ys, nil)
	if math.IsNaN(corr) {
		return 0, false
	}
	return corr, true
}

func summarize(peers []PeerCorrelation) InstrumentDetail {
	desc := make([]PeerCorrelation, len(peers))
	copy(desc, peers)
	sort.SliceStable(desc, func(i, j int) bool {
		return desc[i].Correlation > desc[j].Correlation
	})

	asc := make([]PeerCorrelation, len(peers))
	copy(asc, peers)
	sort.SliceStable(asc, func(i, j int) bool {
		return asc[i].Correlation < asc[j].Correlation
	})

	sum := 0.0
	for _, p := range peers {
		sum += p.Correlation
	}

	return InstrumentDetail{
		TopPositive:        firstN(desc, 5),
		TopNegative:        firstN(asc, 5),
		AverageCorrelation: round4(sum / float64(len(peers))),
	}
}

func rankPairs(pairs []PairCorrelation) (positive, negative []PairCorrelation) {
	asc := make([]PairCorrelation, len(pairs))
	copy(asc, pairs)
	sort.SliceStable(asc, func(i, j int) bool {
		return asc[i].Correlation < asc[j].Correlation
	})

	n := len(asc)
	bottom := 10
	if bottom > n {
		bottom = n
	}
	negative = append(negative, asc[:bottom]...)

	// Highest first.
	for i := n - 1; i >= n-bottom; i-- {
		positive = append(positive, asc[i])
	}
	return positive, negative
}

func meanPairs(pairs []PairCorrelation) float64 {
	if len(pairs) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range pairs {
		sum += p.Correlation
	}
	return sum / float64(len(pairs))
}

func firstN(peers []PeerCorrelation, n int) []PeerCorrelation {
	if n > len(peers) {
		n = len(peers)
	}
	out := make([]PeerCorrelation, n)
	copy(out, peers[:n])
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
