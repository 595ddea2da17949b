package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/bprzybysz/autobroker/internal/modules/historical"
	"github.com/bprzybysz/autobroker/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seriesFromCloses builds a 53-point weekly series from a close generator
func seriesFromCloses(symbol string, close func(i int) float64) *historical.WeeklySeries {
	start := time.Date(2023, 1, 6, 0, 0, 0, 0, time.UTC)
	points := make([]historical.WeeklyPoint, historical.WeeklyPoints)
	for i := range points {
		points[i] = historical.WeeklyPoint{
			Date:  start.AddDate(0, 0, 7*i),
			Close: close(i),
		}
	}
	return &historical.WeeklySeries{Symbol: symbol, Points: points}
}

func TestRanker_Score_Deterministic(t *testing.T) {
	ranker := NewRanker(logger.New(logger.Config{Level: "error"}))
	series := seriesFromCloses("AAPL", func(i int) float64 {
		return 100 + 10*math.Sin(float64(i)) + float64(i)
	})

	first := ranker.Score(series)
	second := ranker.Score(series)

	assert.Equal(t, first, second)
}

func TestRanker_Score_AdjustmentThreshold(t *testing.T) {
	ranker := NewRanker(logger.New(logger.Config{Level: "error"}))

	// Steady upward drift with mild noise scores well above the threshold
	strong := ranker.Score(seriesFromCloses("UP", func(i int) float64 {
		return 100 * math.Pow(1.01, float64(i)) * (1 + 0.001*math.Sin(float64(i)))
	}))
	require.True(t, strong.Defined)
	require.Greater(t, strong.Unadjusted, AdjustmentThreshold)
	assert.InDelta(t, math.Pow(strong.Unadjusted, 1.5), strong.Adjusted, 1e-12)

	// Downward drift scores negative and gets zero weight
	weak := ranker.Score(seriesFromCloses("DOWN", func(i int) float64 {
		return 100 * math.Pow(0.99, float64(i)) * (1 + 0.001*math.Sin(float64(i)))
	}))
	require.True(t, weak.Defined)
	assert.Less(t, weak.Unadjusted, 0.0)
	assert.Zero(t, weak.Adjusted)
}

func TestRanker_Score_AdjustedStrictlyIncreasing(t *testing.T) {
	ranker := NewRanker(logger.New(logger.Config{Level: "error"}))

	mild := ranker.Score(seriesFromCloses("MILD", func(i int) float64 {
		return 100 * math.Pow(1.005, float64(i)) * (1 + 0.001*math.Sin(float64(i)))
	}))
	strong := ranker.Score(seriesFromCloses("STRONG", func(i int) float64 {
		return 100 * math.Pow(1.02, float64(i)) * (1 + 0.001*math.Sin(float64(i)))
	}))

	require.True(t, mild.Defined)
	require.True(t, strong.Defined)
	require.Greater(t, strong.Unadjusted, mild.Unadjusted)
	if mild.Adjusted > 0 {
		assert.Greater(t, strong.Adjusted, mild.Adjusted)
	}
}

func TestRanker_Score_ZeroVarianceDisqualifies(t *testing.T) {
	ranker := NewRanker(logger.New(logger.Config{Level: "error"}))

	// Flat prices: zero-variance returns, no meaningful ratio
	score := ranker.Score(seriesFromCloses("FLAT", func(i int) float64 {
		return 100
	}))

	assert.False(t, score.Defined)
	assert.Zero(t, score.Adjusted)
	assert.Zero(t, score.Unadjusted)
}

func TestRanker_ScoreAll(t *testing.T) {
	ranker := NewRanker(logger.New(logger.Config{Level: "error"}))

	series := map[string]*historical.WeeklySeries{
		"UP": seriesFromCloses("UP", func(i int) float64 {
			return 100 * math.Pow(1.01, float64(i)) * (1 + 0.001*math.Sin(float64(i)))
		}),
		"FLAT": seriesFromCloses("FLAT", func(i int) float64 { return 100 }),
	}

	scores := ranker.ScoreAll(series)

	require.Len(t, scores, 2)
	assert.True(t, scores["UP"].Defined)
	assert.False(t, scores["FLAT"].Defined)
}
