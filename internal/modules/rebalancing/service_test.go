package rebalancing

import (
	"bytes"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/bprzybysz/autobroker/internal/config"
	"github.com/bprzybysz/autobroker/internal/database"
	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/bprzybysz/autobroker/internal/events"
	"github.com/bprzybysz/autobroker/internal/locking"
	"github.com/bprzybysz/autobroker/internal/modules/allocation"
	"github.com/bprzybysz/autobroker/internal/modules/execution"
	"github.com/bprzybysz/autobroker/internal/modules/historical"
	"github.com/bprzybysz/autobroker/internal/modules/orders"
	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/bprzybysz/autobroker/internal/modules/scoring"
	"github.com/bprzybysz/autobroker/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipelineGateway is a scripted gateway for end-to-end run tests. Every
// submitted order fills on the first poll.
type pipelineGateway struct {
	bars       map[string][]domain.DailyBar
	prices     map[string]float64
	positions  []domain.Position
	totalValue float64

	// accounts overrides the default paper account when non-nil
	accounts []string

	submitted []domain.OrderIntent
	nextID    int
}

func (g *pipelineGateway) ResolveInstrument(symbol string) (*domain.InstrumentRef, error) {
	return &domain.InstrumentRef{Symbol: symbol, Exchange: "SMART", Currency: "USD"}, nil
}

func (g *pipelineGateway) SubmitOrder(ref domain.InstrumentRef, intent domain.OrderIntent) (*domain.TradeHandle, error) {
	g.nextID++
	g.submitted = append(g.submitted, intent)
	return &domain.TradeHandle{OrderID: fmt.Sprintf("ORD-%d", g.nextID), Intent: intent}, nil
}

func (g *pipelineGateway) CancelOrder(handle *domain.TradeHandle) error { return nil }

func (g *pipelineGateway) PollStatus(handle *domain.TradeHandle) (*domain.OrderStatus, error) {
	return &domain.OrderStatus{Done: true, Remaining: 0}, nil
}

func (g *pipelineGateway) GetAccounts() ([]string, error) {
	if g.accounts != nil {
		return g.accounts, nil
	}
	return []string{"DU123456"}, nil
}

func (g *pipelineGateway) GetAccountValue(account, tag string) (float64, error) {
	return g.totalValue, nil
}

func (g *pipelineGateway) GetPositions(account string) ([]domain.Position, error) {
	return g.positions, nil
}

func (g *pipelineGateway) GetLastPrice(ref domain.InstrumentRef) (float64, error) {
	price, ok := g.prices[ref.Symbol]
	if !ok {
		return 0, fmt.Errorf("no quote for %s", ref.Symbol)
	}
	return price, nil
}

func (g *pipelineGateway) GetHistoricalDailyBars(ref domain.InstrumentRef, days int) ([]domain.DailyBar, error) {
	return g.bars[ref.Symbol], nil
}

func (g *pipelineGateway) IsConnected() bool { return true }

type staticUniverse map[string]bool

func (u staticUniverse) Symbols() (map[string]bool, error) { return u, nil }

// linearBars builds a daily series ending at end, one bar per calendar day,
// with the close moving linearly from start by step per day
func linearBars(end time.Time, days int, start, step float64) []domain.DailyBar {
	bars := make([]domain.DailyBar, days)
	for i := 0; i < days; i++ {
		date := end.AddDate(0, 0, -(days - 1 - i))
		bars[i] = domain.DailyBar{Date: date, Close: start + step*float64(i)}
	}
	return bars
}

func newRunService(t *testing.T, gateway *pipelineGateway, universe staticUniverse) *Service {
	t.Helper()

	log := logger.New(logger.Config{Level: "error"})

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })

	waitDuration := 30 * time.Minute
	cfg := &config.Config{
		BrokerAccount:          "",
		MaxPortfolioSize:       13,
		RoundQuantitiesTo:      1,
		PrimarySellType:        "LMT",
		AuxiliarySellType:      "MKT",
		PrimaryBuyType:         "LMT",
		AuxiliaryBuyType:       "MKT",
		SellWaitDuration:       &waitDuration,
		BuyWaitDuration:        &waitDuration,
		PollInterval:           time.Millisecond,
		Timezone:               time.UTC,
		HistoricalLookbackDays: 730,
	}

	repo := historical.NewPriceRepository(db.Conn(), log)

	return NewService(ServiceConfig{
		Config:      cfg,
		Gateway:     gateway,
		Universe:    universe,
		Historical:  historical.NewService(repo, gateway, cfg.HistoricalLookbackDays, log),
		Ranker:      scoring.NewRanker(log),
		Portfolio:   portfolio.NewService(gateway, log),
		Planner:     allocation.NewPlanner(cfg.MaxPortfolioSize, log),
		Generator:   orders.NewGenerator(cfg.RoundQuantitiesTo, cfg.PrimarySellType, cfg.PrimaryBuyType, log),
		Coordinator: execution.NewCoordinator(gateway, cfg.PollInterval, log),
		Journal:     NewJournal(db, log),
		Events:      events.NewManager(log),
		Locks:       locking.NewManager(log),
		Log:         log,
	})
}

func TestRun_FullPipeline(t *testing.T) {
	end := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	// Five identical risers split the weight evenly at 20% each, below the
	// 25% cap, so no excess cascades into the unscored rows. FLAT never
	// moves (zero variance, score undefined); OLD is held but not listed.
	rising := []string{"GROW1", "GROW2", "GROW3", "GROW4", "GROW5"}

	bars := map[string][]domain.DailyBar{
		"FLAT": linearBars(end, 430, 50, 0),
		"OLD":  linearBars(end, 430, 10, 0),
	}
	prices := map[string]float64{"FLAT": 50, "OLD": 10}
	universe := staticUniverse{"FLAT": true}
	for _, symbol := range rising {
		bars[symbol] = linearBars(end, 430, 50, 0.1)
		prices[symbol] = 100
		universe[symbol] = true
	}

	gateway := &pipelineGateway{
		bars:       bars,
		prices:     prices,
		positions:  []domain.Position{{Symbol: "OLD", Quantity: 50, AvgCost: 10}},
		totalValue: 10000,
	}

	service := newRunService(t, gateway, universe)

	report, err := service.Run()
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, "DU123456", report.Account)
	assert.Equal(t, 10000.0, report.TotalValue)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Error)

	// Each riser: 20% of 10000 at price 100 is 20 shares
	for _, symbol := range rising {
		row := rowFor(t, report, symbol)
		assert.True(t, row.ScoreDefined)
		assert.InDelta(t, 20.0, row.TargetPct, 1e-9)
		require.NotNil(t, row.TargetCount)
		assert.InDelta(t, 20.0, *row.TargetCount, 1e-9)
	}

	// FLAT has zero variance: score undefined, no target
	flatRow := rowFor(t, report, "FLAT")
	assert.False(t, flatRow.ScoreDefined)
	assert.Zero(t, flatRow.TargetPct)

	// One sell (OLD liquidated) followed by five buys
	require.Len(t, gateway.submitted, 6)

	sell := gateway.submitted[0]
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, "OLD", sell.Symbol)
	assert.Equal(t, 50, sell.Quantity)
	assert.Equal(t, "LMT", sell.OrderType)

	for _, buy := range gateway.submitted[1:] {
		assert.Equal(t, domain.SideBuy, buy.Side)
		assert.Equal(t, 20, buy.Quantity)
		assert.Contains(t, rising, buy.Symbol)
	}

	assert.Equal(t, 1, report.SellOrders)
	assert.Equal(t, 5, report.BuyOrders)
	assert.Zero(t, report.Escalations)

	// Report is retained for the API
	assert.Same(t, report, service.LastReport())
}

func TestRun_JournalsExecutedOrders(t *testing.T) {
	end := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	gateway := &pipelineGateway{
		bars:       map[string][]domain.DailyBar{"GROW": linearBars(end, 430, 50, 0.1)},
		prices:     map[string]float64{"GROW": 100},
		totalValue: 10000,
	}

	service := newRunService(t, gateway, staticUniverse{"GROW": true})

	report, err := service.Run()
	require.NoError(t, err)

	trades, err := service.journal.RunTrades(report.RunID)
	require.NoError(t, err)
	require.Len(t, trades, 1)

	assert.Equal(t, report.RunID, trades[0].RunID)
	assert.Equal(t, "GROW", trades[0].Symbol)
	assert.Equal(t, "BUY", trades[0].Side)
	assert.Equal(t, 25, trades[0].Quantity)
	assert.True(t, trades[0].Filled)
	assert.False(t, trades[0].Escalated)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	gateway := &pipelineGateway{totalValue: 10000}
	service := newRunService(t, gateway, staticUniverse{})

	require.NoError(t, service.locks.Acquire(lockName))
	defer service.locks.Release(lockName)

	_, err := service.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestRun_InsufficientHistoryExcludesInstrument(t *testing.T) {
	end := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	// SHORT has two weeks of data: not enough for a weekly series. It has
	// no quote either, so it cannot soak up capped-off weight.
	gateway := &pipelineGateway{
		bars: map[string][]domain.DailyBar{
			"GROW":  linearBars(end, 430, 50, 0.1),
			"SHORT": linearBars(end, 14, 20, 0.1),
		},
		prices:     map[string]float64{"GROW": 100},
		totalValue: 10000,
	}

	service := newRunService(t, gateway, staticUniverse{"GROW": true, "SHORT": true})

	report, err := service.Run()
	require.NoError(t, err)

	var reasons []string
	for _, e := range report.Excluded {
		if e.Symbol == "SHORT" {
			reasons = append(reasons, e.Reason)
		}
	}
	assert.Contains(t, reasons, "insufficient history")

	// The run itself still completes and trades the healthy instrument,
	// which takes the full 25% concentration cap as the only scored row
	require.Len(t, gateway.submitted, 1)
	assert.Equal(t, "GROW", gateway.submitted[0].Symbol)
	assert.Equal(t, 25, gateway.submitted[0].Quantity)
}

func rowFor(t *testing.T, report *RunReport, symbol string) *portfolio.Row {
	t.Helper()
	for _, row := range report.Rows {
		if row.Symbol == symbol {
			return row
		}
	}
	t.Fatalf("no row for %s", symbol)
	return nil
}

func TestRun_EmitsOrderAndPhaseEvents(t *testing.T) {
	end := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	gateway := &pipelineGateway{
		bars:       map[string][]domain.DailyBar{"GROW": linearBars(end, 430, 50, 0.1)},
		prices:     map[string]float64{"GROW": 100},
		totalValue: 10000,
	}

	service := newRunService(t, gateway, staticUniverse{"GROW": true})

	var buf bytes.Buffer
	service.events = events.NewManager(zerolog.New(&buf))

	_, err := service.Run()
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, string(events.RebalanceRunStarted))
	assert.Contains(t, out, string(events.OrderSubmitted))
	assert.Contains(t, out, string(events.PhaseCompleted))
	assert.Contains(t, out, string(events.RebalanceRunCompleted))
	assert.NotContains(t, out, string(events.RebalanceRunFailed))
}

func TestRun_EmitsRunFailedOnFatalError(t *testing.T) {
	// No accounts to auto-detect, so the run dies before the pipeline
	gateway := &pipelineGateway{accounts: []string{}}
	service := newRunService(t, gateway, staticUniverse{})

	var buf bytes.Buffer
	service.events = events.NewManager(zerolog.New(&buf))

	_, err := service.Run()
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, string(events.RebalanceRunStarted))
	assert.Contains(t, out, string(events.RebalanceRunFailed))
	assert.NotContains(t, out, string(events.RebalanceRunCompleted))
}
