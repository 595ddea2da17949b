package domain

import "time"

// OrderSide identifies the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// InstrumentRef is a broker-resolved reference to a tradable security
type InstrumentRef struct {
	Symbol     string `json:"symbol"`
	Exchange   string `json:"exchange"`
	Currency   string `json:"currency"`
	ContractID int64  `json:"contract_id"`
}

// Position represents a holding reported by the broker
type Position struct {
	Symbol   string  `json:"symbol"`
	Quantity float64 `json:"quantity"`
	AvgCost  float64 `json:"avg_cost"`
}

// DailyBar is a single daily close in a historical price series
type DailyBar struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// OrderIntent is an instruction to trade a fixed quantity of one instrument.
// Intents are created by the order generator and consumed exactly once by the
// execution coordinator; they are never mutated after creation.
type OrderIntent struct {
	Symbol    string    `json:"symbol"`
	Side      OrderSide `json:"side"`
	Quantity  int       `json:"quantity"`
	OrderType string    `json:"order_type"`
}

// TradeHandle is an opaque reference to a submitted order. It is owned by the
// execution coordinator for the duration of one execution phase.
type TradeHandle struct {
	OrderID string      `json:"order_id"`
	Intent  OrderIntent `json:"intent"`

	// SourceOrderID links an escalated replacement back to the order it
	// superseded; empty for first submissions
	SourceOrderID string `json:"source_order_id,omitempty"`
}

// OrderStatus is the broker's view of a submitted order
type OrderStatus struct {
	Done      bool `json:"done"`
	Remaining int  `json:"remaining"`
}
