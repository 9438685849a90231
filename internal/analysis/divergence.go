package analysis

// DivergenceType names the direction of a price/RSI divergence.
type DivergenceType string

const (
	DivergenceBearish DivergenceType = "bearish"
	DivergenceBullish DivergenceType = "bullish"
)

// RSI computes the relative strength index over the last period deltas
// of the series. Returns 50 when there is not enough data.
func RSI(closes []float64, period int) float64 {
	if len(closes) < 2 {
		return 50
	}

	deltas := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		deltas[i-1] = closes[i] - closes[i-1]
	}
	if period > 0 && len(deltas) > period {
		deltas = deltas[len(deltas)-period:]
	}

	var gainSum, lossSum float64
	for _, d := range deltas {
		if d > 0 {
			gainSum += d
		} else {
			lossSum -= d
		}
	}
	avgGain := gainSum / float64(len(deltas))
	avgLoss := lossSum / float64(len(deltas))

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// DetectDivergence compares price extremes in the first and second half of
// the lookback window against RSI. For a long position a bearish divergence
// is price making higher highs while RSI sits below 50; for a short, price
// making lower lows while RSI sits above 50.
func DetectDivergence(closes []float64, long bool, lookback, rsiPeriod int) (bool, DivergenceType) {
	if len(closes) < lookback {
		return false, ""
	}

	window := closes[len(closes)-lookback:]
	rsi := RSI(window, rsiPeriod)

	mid := len(window) / 2
	firstHigh, firstLow := extremes(window[:mid])
	secondHigh, secondLow := extremes(window[mid:])

	if long {
		if secondHigh > firstHigh && rsi < 50 {
			return true, DivergenceBearish
		}
	} else {
		if secondLow < firstLow && rsi > 50 {
			return true, DivergenceBullish
		}
	}
	return false, ""
}

func extremes(values []float64) (high, low float64) {
	if len(values) == 0 {
		return 0, 0
	}
	high, low = values[0], values[0]
	for _, v := range values[1:] {
		if v > high {
			high = v
		}
		if v < low {
			low = v
		}
	}
	return high, low
}
