// Package indicators derives rolling technical indicators (moving
// averages, RSI, MACD, Bollinger Bands) from a daily price series.
package indicators

import (
	"errors"
	"math"
	"time"

	"borsa/internal/marketdata"
)

// MinHistory is the minimum number of daily bars needed before any
// indicator row is produced; the 200-day moving average dominates.
const MinHistory = 200

// ErrInsufficientHistory is returned when a series is too short for
// the slowest indicator window.
var ErrInsufficientHistory = errors.New("not enough price history for technical indicators")

// Row carries every indicator for one (symbol, date). Rows are only
// emitted once all warmup windows are filled.
type Row struct {
	Symbol string    `db:"symbol" json:"symbol"`
	Date   time.Time `db:"date" json:"date"`

	RSI14         float64 `db:"rsi_14" json:"rsi_14"`
	MACD          float64 `db:"macd" json:"macd"`
	MACDSignal    float64 `db:"macd_signal" json:"macd_signal"`
	MACDHistogram float64 `db:"macd_histogram" json:"macd_histogram"`

	BollingerUpper  float64 `db:"bollinger_upper" json:"bollinger_upper"`
	BollingerMiddle float64 `db:"bollinger_middle" json:"bollinger_middle"`
	BollingerLower  float64 `db:"bollinger_lower" json:"bollinger_lower"`

	MA5   float64 `db:"ma_5" json:"ma_5"`
	MA10  float64 `db:"ma_10" json:"ma_10"`
	MA20  float64 `db:"ma_20" json:"ma_20"`
	MA50  float64 `db:"ma_50" json:"ma_50"`
	MA100 float64 `db:"ma_100" json:"ma_100"`
	MA200 float64 `db:"ma_200" json:"ma_200"`
}

// Compute derives the full indicator table from a date-ascending price
// series. Warmup rows (anything before the RSI and MA200 windows are
// both filled) are dropped, matching how the indicator store is
// populated.
func Compute(points []marketdata.PricePoint) ([]Row, error) {
	if len(points) < MinHistory {
		return nil, ErrInsufficientHistory
	}

	closes := marketdata.Closes(points)

	rsi := RSI(closes, 14)
	ma5 := SMA(closes, 5)
	ma10 := SMA(closes, 10)
	ma20 := SMA(closes, 20)
	ma50 := SMA(closes, 50)
	ma100 := SMA(closes, 100)
	ma200 := SMA(closes, 200)

	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = ema12[i] - ema26[i]
	}
	signal := EMA(macd, 9)

	std20 := RollingStd(closes, 20)

	rows := make([]Row, 0, len(points))
	for i, p := range points {
		if math.IsNaN(rsi[i]) || math.IsNaN(ma200[i]) {
			continue
		}
		rows = append(rows, Row{
			Symbol:          p.Symbol,
			Date:            marketdata.Day(p.Date),
			RSI14:           rsi[i],
			MACD:            macd[i],
			MACDSignal:      signal[i],
			MACDHistogram:   macd[i] - signal[i],
			BollingerUpper:  ma20[i] + 2*std20[i],
			BollingerMiddle: ma20[i],
			BollingerLower:  ma20[i] - 2*std20[i],
			MA5:             ma5[i],
			MA10:            ma10[i],
			MA20:            ma20[i],
			MA50:            ma50[i],
			MA100:           ma100[i],
			MA200:           ma200[i],
		})
	}
	return rows, nil
}

// SMA is the simple moving average; positions before the window fills
// are NaN.
func SMA(values []float64, window int) []float64 {
	out := warmup(len(values), window-1)
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA is the span-based exponential moving average seeded with the
// first value (recursive form, no warmup NaNs).
func EMA(values []float64, span int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / (float64(span) + 1.0)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RollingStd is the rolling sample standard deviation over the window.
func RollingStd(values []float64, window int) []float64 {
	out := warmup(len(values), window-1)
	if window < 2 {
		return out
	}
	for i := window - 1; i < len(values); i++ {
		slice := values[i-window+1 : i+1]
		mean := 0.0
		for _, v := range slice {
			mean += v
		}
		mean /= float64(window)
		ss := 0.0
		for _, v := range slice {
			d := v - mean
			ss += d * d
		}
		out[i] = math.Sqrt(ss / float64(window-1))
	}
	return out
}

// RSI is the rolling-mean relative strength index: average gain over
// average loss across the trailing window of day-over-day changes. An
// all-gain window reads 100; a flat window is undefined (NaN).
func RSI(closes []float64, period int) []float64 {
	out := warmup(len(closes), period)
	for i := period; i < len(closes); i++ {
		gain, loss := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			change := closes[j] - closes[j-1]
			if change > 0 {
				gain += change
			} else {
				loss -= change
			}
		}
		avgGain := gain / float64(period)
		avgLoss := loss / float64(period)
		switch {
		case avgLoss == 0 && avgGain == 0:
			out[i] = math.NaN()
		case avgLoss == 0:
			out[i] = 100
		default:
			rs := avgGain / avgLoss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// warmup allocates a series with the first n positions NaN.
func warmup(length, n int) []float64 {
	out := make([]float64, length)
	for i := 0; i < length && i < n; i++ {
		out[i] = math.NaN()
	}
	return out
}
