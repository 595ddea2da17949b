// Package scoring converts weekly price series into risk-adjusted scores.
package scoring

import (
	"math"

	"github.com/bprzybysz/autobroker/internal/modules/historical"
	"github.com/bprzybysz/autobroker/pkg/formulas"
	"github.com/rs/zerolog"
)

// AdjustmentThreshold is the minimum unadjusted score an instrument must
// clear before it receives any allocation weight
const AdjustmentThreshold = 0.2

// windows are the lookbacks (in weeks) averaged into the final score
var windows = []int{52, 26, 13}

// Score is the risk-adjusted score for one instrument.
//
// Unadjusted is the average of the Sharpe ratios over the 52, 26 and 13 week
// windows and can be negative. Adjusted is Unadjusted^1.5 when the threshold
// is cleared and zero otherwise, so instruments below the bar get no weight
// and instruments above it are rewarded super-linearly.
//
// Defined is false when any window has a zero-variance return series, which
// makes the ratio meaningless. An undefined score always carries zero
// Adjusted weight.
type Score struct {
	Unadjusted float64 `json:"unadjusted"`
	Adjusted   float64 `json:"adjusted"`
	Defined    bool    `json:"defined"`
}

// Ranker scores instruments from their weekly series
type Ranker struct {
	log zerolog.Logger
}

// NewRanker creates a new Sharpe ranker
func NewRanker(log zerolog.Logger) *Ranker {
	return &Ranker{
		log: log.With().Str("service", "scoring").Logger(),
	}
}

// Score calculates the risk-adjusted score for a single weekly series
func (r *Ranker) Score(series *historical.WeeklySeries) Score {
	changes := formulas.Changes(series.Closes())

	var sum float64
	for _, window := range windows {
		sharpe := formulas.WindowedSharpeRatio(changes, window)
		if sharpe == nil {
			r.log.Warn().
				Str("symbol", series.Symbol).
				Int("window", window).
				Msg("Undefined Sharpe ratio, instrument disqualified")
			return Score{}
		}
		sum += *sharpe
	}

	unadjusted := sum / float64(len(windows))

	adjusted := 0.0
	if unadjusted > AdjustmentThreshold {
		adjusted = math.Pow(unadjusted, 1.5)
	}

	return Score{
		Unadjusted: unadjusted,
		Adjusted:   adjusted,
		Defined:    true,
	}
}

// ScoreAll scores every series in the map, keyed by symbol
func (r *Ranker) ScoreAll(series map[string]*historical.WeeklySeries) map[string]Score {
	scores := make(map[string]Score, len(series))
	for symbol, s := range series {
		score := r.Score(s)
		scores[symbol] = score

		r.log.Debug().
			Str("symbol", symbol).
			Float64("unadjusted", score.Unadjusted).
			Float64("adjusted", score.Adjusted).
			Bool("defined", score.Defined).
			Msg("Scored instrument")
	}
	return scores
}
