package scheduler

import (
	"fmt"

	"github.com/bprzybysz/autobroker/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// RebalanceJob triggers a scheduled rebalance run. The rebalancing service
// itself rejects overlapping runs, so a slow run and the next scheduled
// trigger cannot stack.
type RebalanceJob struct {
	service *rebalancing.Service
	log     zerolog.Logger
}

// NewRebalanceJob creates a new rebalance job
func NewRebalanceJob(service *rebalancing.Service, log zerolog.Logger) *RebalanceJob {
	return &RebalanceJob{
		service: service,
		log:     log.With().Str("job", "rebalance").Logger(),
	}
}

// Name returns the job name
func (j *RebalanceJob) Name() string {
	return "rebalance"
}

// Run executes one rebalance run
func (j *RebalanceJob) Run() error {
	report, err := j.service.Run()
	if err != nil {
		return fmt.Errorf("scheduled rebalance failed: %w", err)
	}

	j.log.Info().
		Str("run_id", report.RunID).
		Int("sell_orders", report.SellOrders).
		Int("buy_orders", report.BuyOrders).
		Msg("Scheduled rebalance completed")

	return nil
}
