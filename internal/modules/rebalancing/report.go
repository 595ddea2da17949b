package rebalancing

import (
	"time"

	"github.com/bprzybysz/autobroker/internal/modules/portfolio"
)

// Exclusion records an instrument dropped from a run and why
type Exclusion struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// RunReport is the outcome of one rebalance run: the final portfolio table,
// the orders each phase produced, and anything that was left out
type RunReport struct {
	RunID      string    `json:"run_id"`
	Account    string    `json:"account"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	TotalValue float64          `json:"total_value"`
	Rows       []*portfolio.Row `json:"rows"`
	Excluded   []Exclusion      `json:"excluded"`

	SellOrders  int `json:"sell_orders"`
	BuyOrders   int `json:"buy_orders"`
	Escalations int `json:"escalations"`

	Error string `json:"error,omitempty"`
}

// Duration returns the wall-clock duration of the run
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *RunReport) exclude(symbol, reason string) {
	r.Excluded = append(r.Excluded, Exclusion{Symbol: symbol, Reason: reason})
}
