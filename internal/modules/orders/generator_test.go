package orders

import (
	"testing"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/bprzybysz/autobroker/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGenerator(roundTo int) *Generator {
	return NewGenerator(roundTo, "LMT", "LMT", logger.New(logger.Config{Level: "error"}))
}

func count(v float64) *float64 {
	return &v
}

// sellRow builds a row with the given actual/target counts and a pct gap
// wide enough to clear the dead band on the sell side
func sellRow(table *portfolio.Table, symbol string, actual float64, target *float64) *portfolio.Row {
	row := table.Ensure(symbol)
	row.ActualCount = actual
	row.TargetCount = target
	row.ActualPct = 20
	row.TargetPct = 10
	return row
}

func buyRow(table *portfolio.Table, symbol string, actual float64, target *float64) *portfolio.Row {
	row := table.Ensure(symbol)
	row.ActualCount = actual
	row.TargetCount = target
	row.ActualPct = 10
	row.TargetPct = 20
	return row
}

func TestSellOrders_RoundsUpAndClamps(t *testing.T) {
	// actual 100, target 40, lot 25: delta 60 rounds up to 75, within the
	// held count so no clamping
	table := portfolio.NewTable()
	sellRow(table, "AAPL", 100, count(40))

	intents := newGenerator(25).SellOrders(table)

	require.Len(t, intents, 1)
	assert.Equal(t, domain.SideSell, intents[0].Side)
	assert.Equal(t, 75, intents[0].Quantity)
	assert.Equal(t, "LMT", intents[0].OrderType)
}

func TestSellOrders_ClampsToHeldCount(t *testing.T) {
	// delta 90 rounds up to 100, clamped to the 95 actually held
	table := portfolio.NewTable()
	sellRow(table, "AAPL", 95, count(5))

	intents := newGenerator(25).SellOrders(table)

	require.Len(t, intents, 1)
	assert.Equal(t, 95, intents[0].Quantity)
}

func TestSellOrders_ZeroTargetSellsAll(t *testing.T) {
	table := portfolio.NewTable()
	sellRow(table, "AAPL", 37, count(0))

	intents := newGenerator(25).SellOrders(table)

	require.Len(t, intents, 1)
	assert.Equal(t, 37, intents[0].Quantity)
}

func TestSellOrders_SkipsRowWhenTargetCountExceedsHeld(t *testing.T) {
	// Actual shares are valued at average cost while the target count uses
	// the live quote, so a row can clear the percentage dead band on the
	// sell side while the count delta says to buy. The negative delta must
	// not round up to a positive lot and dump the whole position.
	table := portfolio.NewTable()
	sellRow(table, "AAPL", 10, count(12))

	intents := newGenerator(25).SellOrders(table)

	assert.Empty(t, intents)
}

func TestSellOrders_NilTargetLiquidatesHeldPosition(t *testing.T) {
	table := portfolio.NewTable()
	sellRow(table, "DELISTED", 12, nil)
	sellRow(table, "NEVERHELD", 0, nil)

	intents := newGenerator(25).SellOrders(table)

	require.Len(t, intents, 1)
	assert.Equal(t, "DELISTED", intents[0].Symbol)
	assert.Equal(t, 12, intents[0].Quantity)
}

func TestSellOrders_DeadBandSuppressesChurn(t *testing.T) {
	table := portfolio.NewTable()
	row := sellRow(table, "AAPL", 100, count(40))
	row.ActualPct = 11.5
	row.TargetPct = 10 // 1.5 point gap, inside the band

	intents := newGenerator(25).SellOrders(table)

	assert.Empty(t, intents)
}

func TestBuyOrders_RoundsDown(t *testing.T) {
	// actual 10, target 37, lot 25: delta 27 rounds down to 25
	table := portfolio.NewTable()
	buyRow(table, "MSFT", 10, count(37))

	intents := newGenerator(25).BuyOrders(table)

	require.Len(t, intents, 1)
	assert.Equal(t, domain.SideBuy, intents[0].Side)
	assert.Equal(t, 25, intents[0].Quantity)
}

func TestBuyOrders_DeltaBelowLotSkipped(t *testing.T) {
	// delta 20 rounds down to 0: nothing to buy
	table := portfolio.NewTable()
	buyRow(table, "MSFT", 10, count(30))

	intents := newGenerator(25).BuyOrders(table)

	assert.Empty(t, intents)
}

func TestBuyOrders_NilTargetSkipped(t *testing.T) {
	table := portfolio.NewTable()
	buyRow(table, "NOPRICE", 0, nil)

	intents := newGenerator(25).BuyOrders(table)

	assert.Empty(t, intents)
}

func TestBuyOrders_DeadBandSuppressesChurn(t *testing.T) {
	table := portfolio.NewTable()
	row := buyRow(table, "MSFT", 10, count(37))
	row.ActualPct = 10
	row.TargetPct = 12 // exactly 2 points, not strictly greater

	intents := newGenerator(25).BuyOrders(table)

	assert.Empty(t, intents)
}

func TestOrders_QuantitiesAreLotMultiples(t *testing.T) {
	const lot = 10

	table := portfolio.NewTable()
	sellRow(table, "S1", 83, count(31))
	buyRow(table, "B1", 7, count(68))

	gen := newGenerator(lot)
	sells := gen.SellOrders(table)
	buys := gen.BuyOrders(table)

	require.Len(t, sells, 1)
	require.Len(t, buys, 1)

	// Sell delta 52 rounds up to 60; buy delta 61 rounds down to 60
	assert.Equal(t, 60, sells[0].Quantity)
	assert.Zero(t, sells[0].Quantity%lot)
	assert.LessOrEqual(t, float64(sells[0].Quantity), table.Get("S1").ActualCount)

	assert.Equal(t, 60, buys[0].Quantity)
	assert.Zero(t, buys[0].Quantity%lot)
}
