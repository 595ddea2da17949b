package portfolio

import (
	"fmt"
	"math"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// NetLiquidationTag is the account value tag holding total portfolio value
const NetLiquidationTag = "NetLiquidation"

// Service loads actual positions and prices into the portfolio table
type Service struct {
	gateway domain.BrokerGateway
	log     zerolog.Logger
}

// NewService creates a new portfolio service
func NewService(gateway domain.BrokerGateway, log zerolog.Logger) *Service {
	return &Service{
		gateway: gateway,
		log:     log.With().Str("service", "portfolio").Logger(),
	}
}

// ResolveAccount returns the account to trade against. When no account is
// configured, the gateway must report exactly one account; zero or multiple
// candidates is a fatal configuration problem.
func (s *Service) ResolveAccount(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	accounts, err := s.gateway.GetAccounts()
	if err != nil {
		return "", fmt.Errorf("failed to list accounts: %w", err)
	}

	switch len(accounts) {
	case 0:
		return "", fmt.Errorf("no accounts available for auto-detection")
	case 1:
		s.log.Info().Str("account", accounts[0]).Msg("Auto-detected account")
		return accounts[0], nil
	default:
		return "", fmt.Errorf("account auto-detection is ambiguous: %d candidates", len(accounts))
	}
}

// LoadPrices fetches the current price for each resolved instrument and
// stores it on the table. An instrument without a price is not fatal: the
// row keeps a nil price, gets excluded from targeting later, and the run
// continues with the rest of the universe.
func (s *Service) LoadPrices(table *Table, refs map[string]domain.InstrumentRef) {
	for _, symbol := range table.Symbols() {
		ref, ok := refs[symbol]
		if !ok {
			continue
		}

		price, err := s.gateway.GetLastPrice(ref)
		if err != nil || price <= 0 {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("No current price available")
			continue
		}

		p := price
		table.Ensure(symbol).Price = &p
	}
}

// LoadActuals fetches account value and open positions and fills the actual
// side of the table. Position rows not present yet are added; the position's
// average cost becomes the row price.
func (s *Service) LoadActuals(table *Table, account string) error {
	totalValue, err := s.gateway.GetAccountValue(account, NetLiquidationTag)
	if err != nil {
		return fmt.Errorf("failed to get account value: %w", err)
	}
	if totalValue <= 0 {
		return fmt.Errorf("account %s reports non-positive value %.2f", account, totalValue)
	}

	table.SetTotalValue(totalValue)

	positions, err := s.gateway.GetPositions(account)
	if err != nil {
		return fmt.Errorf("failed to get positions: %w", err)
	}

	for _, pos := range positions {
		row := table.Ensure(pos.Symbol)

		price := pos.AvgCost
		value := price * pos.Quantity

		row.Price = &price
		row.ActualCount = math.Round(pos.Quantity*100) / 100
		row.ActualValue = math.Round(value*100) / 100
		row.ActualPct = value / totalValue * 100
	}

	s.log.Info().
		Float64("total_value", totalValue).
		Int("positions", len(positions)).
		Msg("Loaded actual portfolio")

	return nil
}
