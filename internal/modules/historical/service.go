package historical

import (
	"fmt"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// Service hydrates the daily price cache from the broker gateway and serves
// weekly series built from it
type Service struct {
	repo         *PriceRepository
	gateway      domain.BrokerGateway
	lookbackDays int
	log          zerolog.Logger
}

// NewService creates a new historical data service
func NewService(repo *PriceRepository, gateway domain.BrokerGateway, lookbackDays int, log zerolog.Logger) *Service {
	return &Service{
		repo:         repo,
		gateway:      gateway,
		lookbackDays: lookbackDays,
		log:          log.With().Str("service", "historical").Logger(),
	}
}

// SyncInstrument pulls the daily series for an instrument from the gateway
// and stores it in the cache
func (s *Service) SyncInstrument(ref domain.InstrumentRef) error {
	bars, err := s.gateway.GetHistoricalDailyBars(ref, s.lookbackDays)
	if err != nil {
		return fmt.Errorf("failed to sync %s: %w", ref.Symbol, err)
	}

	if err := s.repo.UpsertBars(ref.Symbol, bars); err != nil {
		return fmt.Errorf("failed to cache %s: %w", ref.Symbol, err)
	}

	s.prune(bars)

	s.log.Debug().Str("symbol", ref.Symbol).Int("bars", len(bars)).Msg("Synced daily bars")

	return nil
}

// prune drops cached bars that fell out of the lookback window. The cutoff is
// anchored to the newest bar just synced rather than the wall clock, so a
// partial trading day never shifts the window. Pruning failures only lose
// cache hygiene, not data, so they are logged and swallowed.
func (s *Service) prune(bars []domain.DailyBar) {
	if len(bars) == 0 {
		return
	}

	newest := bars[0].Date
	for _, bar := range bars[1:] {
		if bar.Date.After(newest) {
			newest = bar.Date
		}
	}

	cutoff := newest.AddDate(0, 0, -s.lookbackDays)
	deleted, err := s.repo.DeleteBefore(cutoff)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to prune price cache")
		return
	}
	if deleted > 0 {
		s.log.Debug().Int64("rows", deleted).Time("cutoff", cutoff).Msg("Pruned stale bars from price cache")
	}
}

// WeeklySeries builds the 53-point weekly series for a symbol from the cache
func (s *Service) WeeklySeries(symbol string) (*WeeklySeries, error) {
	daily, err := s.repo.GetDailySeries(symbol)
	if err != nil {
		return nil, err
	}

	return BuildWeeklySeries(symbol, daily)
}
