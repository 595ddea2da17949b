// Package orders diffs the actual portfolio against the target portfolio
// into buy and sell instructions.
package orders

import (
	"math"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/rs/zerolog"
)

// DeadBandPct is the actual-vs-target deviation, in percentage points, below
// which no order is generated. It suppresses churn from price noise.
const DeadBandPct = 2.0

// Generator produces order intents from a targeted portfolio table
type Generator struct {
	roundTo  int
	sellType string
	buyType  string
	log      zerolog.Logger
}

// NewGenerator creates a new order generator. roundTo is the lot size all
// quantities are rounded to; sellType and buyType are the primary order
// types stamped on the generated intents.
func NewGenerator(roundTo int, sellType, buyType string, log zerolog.Logger) *Generator {
	return &Generator{
		roundTo:  roundTo,
		sellType: sellType,
		buyType:  buyType,
		log:      log.With().Str("service", "orders").Logger(),
	}
}

// SellOrders generates sell intents for every row whose actual share exceeds
// its target share by more than the dead band.
//
// Quantities are rounded up to the next lot so fractional remainders get
// fully exited rather than leaving odd-lot residue, then clamped so a sell
// never exceeds the held count. A row with no target count (no price) is a
// full liquidation candidate when it still holds a position.
func (g *Generator) SellOrders(table *portfolio.Table) []domain.OrderIntent {
	var intents []domain.OrderIntent

	for _, row := range table.Rows() {
		if row.ActualPct-row.TargetPct <= DeadBandPct {
			continue
		}

		var quantity float64
		switch {
		case row.TargetCount == nil:
			if row.ActualCount <= 0 {
				continue
			}
			g.log.Warn().Str("symbol", row.Symbol).Msg("Liquidating position excluded from target portfolio")
			quantity = row.ActualCount
		case *row.TargetCount == 0:
			quantity = row.ActualCount
		default:
			quantity = row.ActualCount - *row.TargetCount
			if quantity <= 0 {
				// Percentage gap cleared the dead band but the count
				// delta points the other way; nothing to sell.
				continue
			}
			r := float64(g.roundTo)
			quantity += r - math.Mod(quantity, r) // Round up to next lot
		}

		if quantity > row.ActualCount {
			quantity = row.ActualCount
		}
		if int(quantity) <= 0 {
			continue
		}

		intents = append(intents, domain.OrderIntent{
			Symbol:    row.Symbol,
			Side:      domain.SideSell,
			Quantity:  int(quantity),
			OrderType: g.sellType,
		})
	}

	g.log.Info().Int("count", len(intents)).Msg("Generated sell orders")

	return intents
}

// BuyOrders generates buy intents for every row whose target share exceeds
// its actual share by more than the dead band.
//
// Quantities are rounded down to the nearest lot: conservative, never
// overspending the computed target. Rows without a target count are skipped.
func (g *Generator) BuyOrders(table *portfolio.Table) []domain.OrderIntent {
	var intents []domain.OrderIntent

	for _, row := range table.Rows() {
		if row.TargetPct-row.ActualPct <= DeadBandPct {
			continue
		}
		if row.TargetCount == nil {
			continue
		}

		r := float64(g.roundTo)
		quantity := *row.TargetCount - row.ActualCount
		quantity -= math.Mod(quantity, r) // Round down to nearest lot

		if int(quantity) <= 0 {
			continue
		}

		intents = append(intents, domain.OrderIntent{
			Symbol:    row.Symbol,
			Side:      domain.SideBuy,
			Quantity:  int(quantity),
			OrderType: g.buyType,
		})
	}

	g.log.Info().Int("count", len(intents)).Msg("Generated buy orders")

	return intents
}
