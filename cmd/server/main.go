package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bprzybysz/autobroker/internal/clients/ibgateway"
	"github.com/bprzybysz/autobroker/internal/config"
	"github.com/bprzybysz/autobroker/internal/database"
	"github.com/bprzybysz/autobroker/internal/events"
	"github.com/bprzybysz/autobroker/internal/locking"
	"github.com/bprzybysz/autobroker/internal/modules/allocation"
	"github.com/bprzybysz/autobroker/internal/modules/execution"
	"github.com/bprzybysz/autobroker/internal/modules/historical"
	"github.com/bprzybysz/autobroker/internal/modules/orders"
	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
	"github.com/bprzybysz/autobroker/internal/modules/rebalancing"
	"github.com/bprzybysz/autobroker/internal/modules/scoring"
	"github.com/bprzybysz/autobroker/internal/modules/universe"
	"github.com/bprzybysz/autobroker/internal/scheduler"
	"github.com/bprzybysz/autobroker/internal/server"
	"github.com/bprzybysz/autobroker/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{
		Level:  "info",
		Pretty: true,
	})

	log.Info().Msg("Starting AutoBroker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	gateway := ibgateway.NewClient(cfg.BrokerServiceURL, log)

	journal := rebalancing.NewJournal(db, log)
	priceRepo := historical.NewPriceRepository(db.Conn(), log)

	rebalanceService := rebalancing.NewService(rebalancing.ServiceConfig{
		Config:      cfg,
		Gateway:     gateway,
		Universe:    universe.NewFileSource(cfg.TickersPath, log),
		Historical:  historical.NewService(priceRepo, gateway, cfg.HistoricalLookbackDays, log),
		Ranker:      scoring.NewRanker(log),
		Portfolio:   portfolio.NewService(gateway, log),
		Planner:     allocation.NewPlanner(cfg.MaxPortfolioSize, log),
		Generator:   orders.NewGenerator(cfg.RoundQuantitiesTo, cfg.PrimarySellType, cfg.PrimaryBuyType, log),
		Coordinator: execution.NewCoordinator(gateway, cfg.PollInterval, log),
		Journal:     journal,
		Events:      events.NewManager(log),
		Locks:       locking.NewManager(log),
		Log:         log,
	})

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if cfg.RebalanceSchedule != "" {
		job := scheduler.NewRebalanceJob(rebalanceService, log)
		if err := sched.AddJob(cfg.RebalanceSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.RebalanceSchedule).Msg("Failed to register rebalance job")
		}
	}

	srv := server.New(server.Config{
		Port:        cfg.Port,
		Log:         log,
		Config:      cfg,
		Gateway:     gateway,
		Rebalancing: rebalanceService,
		Journal:     journal,
		DevMode:     cfg.DevMode,
	})

	go func() {
		// Shutdown makes Start return ErrServerClosed; that is the
		// normal drain path, not a startup failure
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
