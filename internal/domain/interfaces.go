package domain

// BrokerGateway defines broker-agnostic trading and market data operations.
// It abstracts the gateway sidecar that owns the actual brokerage session;
// all broker operations go through this interface.
type BrokerGateway interface {
	// Instrument operations
	ResolveInstrument(symbol string) (*InstrumentRef, error)

	// Trading operations
	SubmitOrder(ref InstrumentRef, intent OrderIntent) (*TradeHandle, error)
	CancelOrder(handle *TradeHandle) error
	PollStatus(handle *TradeHandle) (*OrderStatus, error)

	// Account operations
	GetAccounts() ([]string, error)
	GetAccountValue(account, tag string) (float64, error)
	GetPositions(account string) ([]Position, error)

	// Market data operations
	GetLastPrice(ref InstrumentRef) (float64, error)
	GetHistoricalDailyBars(ref InstrumentRef, days int) ([]DailyBar, error)

	// Connection & health
	IsConnected() bool
}

// InstrumentSource provides the instrument universe for a rebalance run
type InstrumentSource interface {
	// Symbols returns the deduplicated set of instrument symbols
	Symbols() (map[string]bool, error)
}
