package analysis

// SwingPoint is a local extreme in a price series.
type SwingPoint struct {
	Index int
	Price float64
}

// SwingLows finds points lower than their two neighbors on each side.
// Needs at least five bars.
func SwingLows(prices []float64) []SwingPoint {
	var points []SwingPoint
	for i := 2; i < len(prices)-2; i++ {
		if prices[i] < prices[i-1] && prices[i] < prices[i-2] &&
			prices[i] < prices[i+1] && prices[i] < prices[i+2] {
			points = append(points, SwingPoint{Index: i, Price: prices[i]})
		}
	}
	return points
}

// SwingHighs finds points higher than their two neighbors on each side.
func SwingHighs(prices []float64) []SwingPoint {
	var points []SwingPoint
	for i := 2; i < len(prices)-2; i++ {
		if prices[i] > prices[i-1] && prices[i] > prices[i-2] &&
			prices[i] > prices[i+1] && prices[i] > prices[i+2] {
			points = append(points, SwingPoint{Index: i, Price: prices[i]})
		}
	}
	return points
}

// FitSwings regresses the swing points against their bar index.
func FitSwings(points []SwingPoint) LinearFit {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = float64(p.Index)
		ys[i] = p.Price
	}
	return LinearRegression(xs, ys)
}
