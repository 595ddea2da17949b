package formulas

import (
	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"
)

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev calculates the sample standard deviation of a slice of float64 values
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Changes converts a price series into period-over-period percentage changes.
// Changes[i] = (Price[i+1] - Price[i]) / Price[i], so a series of N prices
// yields N-1 changes.
func Changes(prices []float64) []float64 {
	if len(prices) < 2 {
		return []float64{}
	}

	// talib.RocP returns a slice of the same length as the input with the
	// first timePeriod entries zeroed, so drop the leading element.
	return talib.Rocp(prices, 1)[1:]
}
