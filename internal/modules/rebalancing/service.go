// Package rebalancing orchestrates a full rebalance run: sync data, score,
// allocate, generate orders and drive both execution phases to completion.
package rebalancing

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bprzybysz/autobroker/internal/config"
	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/bprzybysz/autobroker/internal/events"
	"github.com/bprzybysz/autobroker/internal/locking"
	"github.com/bprzybysz/autobroker/internal/modules/allocation"
	"github.com/bprzybysz/autobroker/internal/modules/execution"
	"github.com/bprzybysz/autobroker/internal/modules/historical"
	"github.com/bprzybysz/autobroker/internal/modules/orders"
	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/bprzybysz/autobroker/internal/modules/scoring"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const lockName = "rebalance"

// ServiceConfig holds dependencies for the rebalancing service
type ServiceConfig struct {
	Config      *config.Config
	Gateway     domain.BrokerGateway
	Universe    domain.InstrumentSource
	Historical  *historical.Service
	Ranker      *scoring.Ranker
	Portfolio   *portfolio.Service
	Planner     *allocation.Planner
	Generator   *orders.Generator
	Coordinator *execution.Coordinator
	Journal     *Journal
	Events      *events.Manager
	Locks       *locking.Manager
	Log         zerolog.Logger
}

// Service runs the rebalance pipeline end to end
type Service struct {
	cfg         *config.Config
	gateway     domain.BrokerGateway
	universe    domain.InstrumentSource
	historical  *historical.Service
	ranker      *scoring.Ranker
	portfolio   *portfolio.Service
	planner     *allocation.Planner
	generator   *orders.Generator
	coordinator *execution.Coordinator
	journal     *Journal
	events      *events.Manager
	locks       *locking.Manager
	log         zerolog.Logger

	mu         sync.RWMutex
	lastReport *RunReport
}

// NewService creates a new rebalancing service
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		cfg:         cfg.Config,
		gateway:     cfg.Gateway,
		universe:    cfg.Universe,
		historical:  cfg.Historical,
		ranker:      cfg.Ranker,
		portfolio:   cfg.Portfolio,
		planner:     cfg.Planner,
		generator:   cfg.Generator,
		coordinator: cfg.Coordinator,
		journal:     cfg.Journal,
		events:      cfg.Events,
		locks:       cfg.Locks,
		log:         cfg.Log.With().Str("service", "rebalancing").Logger(),
	}
}

// Running reports whether a run is currently in flight
func (s *Service) Running() bool {
	return s.locks.IsHeld(lockName)
}

// LastReport returns the report of the most recent run, or nil
func (s *Service) LastReport() *RunReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastReport
}

// Run executes one full rebalance. Concurrent runs are rejected: a second
// call while a run is in flight returns an error immediately.
func (s *Service) Run() (*RunReport, error) {
	if err := s.locks.Acquire(lockName); err != nil {
		return nil, fmt.Errorf("rebalance already running: %w", err)
	}
	defer s.locks.Release(lockName)

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	log := s.log.With().Str("run_id", report.RunID).Logger()
	log.Info().Msg("Starting rebalance run")
	s.events.Emit(events.RebalanceRunStarted, "rebalancing", map[string]interface{}{
		"run_id": report.RunID,
	})

	err := s.run(report, log)
	report.FinishedAt = time.Now()

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	if err != nil {
		report.Error = err.Error()
		s.events.Emit(events.RebalanceRunFailed, "rebalancing", map[string]interface{}{
			"run_id": report.RunID,
			"error":  err.Error(),
		})
		return report, err
	}

	log.Info().
		Dur("duration", report.Duration()).
		Int("sell_orders", report.SellOrders).
		Int("buy_orders", report.BuyOrders).
		Int("escalations", report.Escalations).
		Msg("Rebalance run completed")
	s.events.Emit(events.RebalanceRunCompleted, "rebalancing", map[string]interface{}{
		"run_id":      report.RunID,
		"sell_orders": report.SellOrders,
		"buy_orders":  report.BuyOrders,
	})

	return report, nil
}

func (s *Service) run(report *RunReport, log zerolog.Logger) error {
	account, err := s.portfolio.ResolveAccount(s.cfg.BrokerAccount)
	if err != nil {
		return fmt.Errorf("failed to resolve account: %w", err)
	}
	report.Account = account

	symbolSet, err := s.universe.Symbols()
	if err != nil {
		return fmt.Errorf("failed to load instrument list: %w", err)
	}

	symbols := make([]string, 0, len(symbolSet))
	for symbol := range symbolSet {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	table := portfolio.NewTable()
	for _, symbol := range symbols {
		table.Ensure(symbol)
	}

	// Resolve instruments. An unresolvable symbol is a data problem with
	// that instrument, not the run: drop it and keep going.
	refs := make(map[string]domain.InstrumentRef, len(symbols))
	for _, symbol := range symbols {
		ref, err := s.gateway.ResolveInstrument(symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to resolve instrument")
			report.exclude(symbol, "unresolvable instrument")
			s.events.Emit(events.InstrumentExcluded, "rebalancing", map[string]interface{}{
				"symbol": symbol,
				"reason": "unresolvable instrument",
			})
			continue
		}
		refs[symbol] = *ref
	}

	// Sync history and build weekly series per instrument
	series := make(map[string]*historical.WeeklySeries, len(refs))
	for _, symbol := range symbols {
		ref, ok := refs[symbol]
		if !ok {
			continue
		}

		if err := s.historical.SyncInstrument(ref); err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to sync history")
			report.exclude(symbol, "history sync failed")
			continue
		}

		weekly, err := s.historical.WeeklySeries(symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to build weekly series")
			report.exclude(symbol, "insufficient history")
			continue
		}

		series[symbol] = weekly
		s.events.Emit(events.InstrumentSynced, "rebalancing", map[string]interface{}{
			"symbol": symbol,
		})
	}

	// Score and fill the target side of the table
	for symbol, score := range s.ranker.ScoreAll(series) {
		row := table.Ensure(symbol)
		row.SharpeUnadjusted = score.Unadjusted
		row.SharpeAdjusted = score.Adjusted
		row.ScoreDefined = score.Defined
	}

	// Actuals first so held positions enter the table with their average
	// cost, then live quotes override wherever one is available
	if err := s.portfolio.LoadActuals(table, account); err != nil {
		return fmt.Errorf("failed to load portfolio actuals: %w", err)
	}

	// Held positions outside the instrument list still need a resolved
	// instrument: they get no target and will be liquidated
	for _, symbol := range table.Symbols() {
		if _, ok := refs[symbol]; ok {
			continue
		}
		ref, err := s.gateway.ResolveInstrument(symbol)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to resolve held instrument")
			report.exclude(symbol, "unresolvable instrument")
			continue
		}
		refs[symbol] = *ref
	}

	s.portfolio.LoadPrices(table, refs)

	for _, symbol := range s.planner.Plan(table) {
		report.exclude(symbol, "no price available")
	}

	report.TotalValue = table.TotalValue()
	report.Rows = table.Rows()

	// Sells complete fully, escalation included, before any buy is
	// generated: buy targets assume the cash the sells free up
	sellIntents := filterResolvable(s.generator.SellOrders(table), refs)
	report.SellOrders = len(sellIntents)

	sellResult, err := s.coordinator.ExecutePhase("sell", sellIntents, refs, s.cfg.AuxiliarySellType, s.sellPolicy())
	if err != nil {
		return fmt.Errorf("sell phase failed: %w", err)
	}
	s.journalPhase(report, "sell", sellResult, log)

	buyIntents := filterResolvable(s.generator.BuyOrders(table), refs)
	report.BuyOrders = len(buyIntents)

	buyResult, err := s.coordinator.ExecutePhase("buy", buyIntents, refs, s.cfg.AuxiliaryBuyType, s.buyPolicy())
	if err != nil {
		return fmt.Errorf("buy phase failed: %w", err)
	}
	s.journalPhase(report, "buy", buyResult, log)

	return nil
}

// journalPhase records every terminal order of a finished phase
func (s *Service) journalPhase(report *RunReport, phase string, result *execution.PhaseResult, log zerolog.Logger) {
	report.Escalations += len(result.Escalated)

	for _, handle := range result.Handles {
		if err := s.journal.RecordOrder(report.RunID, handle, true); err != nil {
			log.Error().Err(err).Str("order_id", handle.OrderID).Msg("Failed to journal order")
			s.events.EmitError("rebalancing", err, map[string]interface{}{
				"run_id":   report.RunID,
				"order_id": handle.OrderID,
			})
		}

		s.events.Emit(events.OrderSubmitted, "rebalancing", map[string]interface{}{
			"symbol":   handle.Intent.Symbol,
			"side":     string(handle.Intent.Side),
			"quantity": handle.Intent.Quantity,
			"order_id": handle.OrderID,
		})

		if handle.SourceOrderID != "" {
			s.events.Emit(events.OrderEscalated, "rebalancing", map[string]interface{}{
				"symbol":          handle.Intent.Symbol,
				"order_id":        handle.OrderID,
				"source_order_id": handle.SourceOrderID,
			})
		}
	}

	s.events.Emit(events.PhaseCompleted, "rebalancing", map[string]interface{}{
		"run_id":    report.RunID,
		"phase":     phase,
		"orders":    len(result.Handles),
		"escalated": len(result.Escalated),
	})
}

func (s *Service) sellPolicy() execution.WaitPolicy {
	return execution.WaitPolicy{
		Duration: s.cfg.SellWaitDuration,
		Until:    toExecutionClock(s.cfg.SellWaitUntil),
		Location: s.cfg.Timezone,
	}
}

func (s *Service) buyPolicy() execution.WaitPolicy {
	return execution.WaitPolicy{
		Duration: s.cfg.BuyWaitDuration,
		Until:    toExecutionClock(s.cfg.BuyWaitUntil),
		Location: s.cfg.Timezone,
	}
}

// filterResolvable drops intents whose instrument never resolved; those
// symbols are already reported as excluded
func filterResolvable(intents []domain.OrderIntent, refs map[string]domain.InstrumentRef) []domain.OrderIntent {
	kept := intents[:0]
	for _, intent := range intents {
		if _, ok := refs[intent.Symbol]; ok {
			kept = append(kept, intent)
		}
	}
	return kept
}

func toExecutionClock(t *config.TimeOfDay) *execution.TimeOfDay {
	if t == nil {
		return nil
	}
	return &execution.TimeOfDay{Hour: t.Hour, Minute: t.Minute}
}
