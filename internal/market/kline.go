// Package market holds the market-data types the risk engine consumes.
// Data acquisition is a caller concern; the engine only ever sees
// already-assembled candle series and a current price.
package market

import "time"

// Kline represents a single OHLCV candle. Series are ordered
// chronologically, oldest first.
type Kline struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// BodyHigh returns the upper edge of the candle body.
func (k Kline) BodyHigh() float64 {
	if k.Open > k.Close {
		return k.Open
	}
	return k.Close
}

// BodyLow returns the lower edge of the candle body.
func (k Kline) BodyLow() float64 {
	if k.Open < k.Close {
		return k.Open
	}
	return k.Close
}

// Closes extracts the close prices of a series.
func Closes(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Close
	}
	return out
}

// Highs extracts the high prices of a series.
func Highs(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.High
	}
	return out
}

// Lows extracts the low prices of a series.
func Lows(klines []Kline) []float64 {
	out := make([]float64, len(klines))
	for i, k := range klines {
		out[i] = k.Low
	}
	return out
}

// Tail returns the most recent n candles (the whole series if shorter).
func Tail(klines []Kline, n int) []Kline {
	if len(klines) <= n {
		return klines
	}
	return klines[len(klines)-n:]
}

// TailFloats returns the most recent n values of a price slice.
func TailFloats(values []float64, n int) []float64 {
	if len(values) <= n {
		return values
	}
	return values[len(values)-n:]
}
