package formulas

// SharpeRatio calculates a non-annualized Sharpe ratio over a return series:
// mean of the returns divided by their sample standard deviation.
//
// Returns nil when the ratio is undefined: fewer than two data points, or a
// standard deviation of zero (a flat return series). Callers must treat nil
// as "no meaningful risk-adjusted score", not as zero.
func SharpeRatio(returns []float64) *float64 {
	if len(returns) < 2 {
		return nil
	}

	stdDev := StdDev(returns)
	if stdDev == 0 {
		return nil
	}

	sharpe := Mean(returns) / stdDev
	return &sharpe
}

// WindowedSharpeRatio calculates the Sharpe ratio over the most recent
// `window` entries of the return series. If the series is shorter than the
// window, all available entries are used.
func WindowedSharpeRatio(returns []float64, window int) *float64 {
	if window < len(returns) {
		returns = returns[len(returns)-window:]
	}
	return SharpeRatio(returns)
}
