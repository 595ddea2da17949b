// Package allocation turns risk-adjusted scores into target position sizes.
package allocation

import (
	"sort"

	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// MaxPositionPct is the per-instrument concentration cap in percentage
// points of total portfolio value
const MaxPositionPct = 25.0

// Planner converts scores and portfolio value into target percentages,
// values and counts
type Planner struct {
	maxPortfolioSize int
	log              zerolog.Logger
}

// NewPlanner creates a new allocation planner. maxPortfolioSize is the
// maximum number of instruments that receive any allocation weight.
func NewPlanner(maxPortfolioSize int, log zerolog.Logger) *Planner {
	return &Planner{
		maxPortfolioSize: maxPortfolioSize,
		log:              log.With().Str("service", "allocation").Logger(),
	}
}

// Plan mutates the target columns of every row in the table and returns the
// symbols excluded from targeting because no price is available.
//
// The pass over the sorted rows is deliberately forward-only: weight capped
// off one instrument is pushed onto the next-ranked one and never
// redistributed backward. If the lowest-ranked instrument is itself capped,
// the residual weight is dropped, so the target percentages can sum to less
// than 100 after any capping event.
func (p *Planner) Plan(table *portfolio.Table) []string {
	rows := table.Rows()

	// Sort by unadjusted score descending. Rows() yields insertion order,
	// so the stable sort keeps that as the tie-break. Undefined scores
	// rank below every defined one.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ScoreDefined != rows[j].ScoreDefined {
			return rows[i].ScoreDefined
		}
		return rows[i].SharpeUnadjusted > rows[j].SharpeUnadjusted
	})

	// Instruments beyond the portfolio size cap keep their row but lose
	// all allocation weight
	for i := p.maxPortfolioSize; i < len(rows); i++ {
		rows[i].SharpeAdjusted = 0
	}

	var sumAdjusted float64
	for _, row := range rows {
		sumAdjusted += row.SharpeAdjusted
	}

	totalValue := table.TotalValue()
	var excluded []string

	// Single forward pass carrying capped-off excess down the ranking
	var excess float64
	for _, row := range rows {
		var rawPct float64
		if sumAdjusted > 0 {
			rawPct = row.SharpeAdjusted / sumAdjusted * 100
		}
		rawPct += excess

		if rawPct > MaxPositionPct {
			excess = rawPct - MaxPositionPct
			rawPct = MaxPositionPct
		} else {
			excess = 0
		}

		row.TargetPct = rawPct
		row.TargetValue = rawPct / 100 * totalValue

		if row.Price != nil && *row.Price > 0 {
			count := row.TargetValue / *row.Price
			row.TargetCount = &count
		} else {
			row.TargetCount = nil
			excluded = append(excluded, row.Symbol)
			p.log.Error().Str("symbol", row.Symbol).Msg("Excluded from target portfolio, no price")
		}
	}

	if sumAdjusted == 0 {
		p.log.Warn().Msg("No instrument carries allocation weight, all targets are zero")
	}
	if excess > 0 {
		p.log.Warn().Float64("dropped_pct", excess).Msg("Residual capped weight dropped")
	}

	return excluded
}
