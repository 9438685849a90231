package analysis

// LinearFit is the result of a least-squares line fit.
type LinearFit struct {
	Slope     float64
	Intercept float64
	RSquared  float64 // 0-1, goodness of fit
}

// LinearRegression fits y = slope*x + intercept by least squares.
// Fewer than two points yields a zero fit.
func LinearRegression(xs, ys []float64) LinearFit {
	n := len(xs)
	if n < 2 || len(ys) != n {
		return LinearFit{}
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var ssXY, ssXX float64
	for i := 0; i < n; i++ {
		dx := xs[i] - meanX
		ssXY += dx * (ys[i] - meanY)
		ssXX += dx * dx
	}
	if ssXX == 0 {
		return LinearFit{Intercept: meanY}
	}

	slope := ssXY / ssXX
	intercept := meanY - slope*meanX

	var ssRes, ssTot float64
	for i := 0; i < n; i++ {
		pred := slope*xs[i] + intercept
		ssRes += (ys[i] - pred) * (ys[i] - pred)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}

	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - ssRes/ssTot
		if r2 < 0 {
			r2 = 0
		} else if r2 > 1 {
			r2 = 1
		}
	}

	return LinearFit{Slope: slope, Intercept: intercept, RSquared: r2}
}

// FitSeries regresses a price series against its bar index.
func FitSeries(values []float64) LinearFit {
	xs := make([]float64, len(values))
	for i := range values {
		xs[i] = float64(i)
	}
	return LinearRegression(xs, values)
}
