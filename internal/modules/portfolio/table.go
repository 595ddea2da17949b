// Package portfolio holds the merged actual/target view of the portfolio for
// a single rebalance run.
package portfolio

// Row is the per-instrument line of the portfolio table
type Row struct {
	Symbol string `json:"symbol"`

	// Price is nil when no current price is available. Rows without a
	// price are excluded from targeting and order generation.
	Price *float64 `json:"price"`

	SharpeUnadjusted float64 `json:"sharpe_unadjusted"`
	SharpeAdjusted   float64 `json:"sharpe_adjusted"`
	ScoreDefined     bool    `json:"score_defined"`

	ActualCount float64 `json:"actual_count"`
	ActualValue float64 `json:"actual_value"`
	ActualPct   float64 `json:"actual_pct"`

	// TargetCount is nil only when Price is unavailable
	TargetCount *float64 `json:"target_count"`
	TargetValue float64  `json:"target_value"`
	TargetPct   float64  `json:"target_pct"`
}

// Table is the portfolio table for one run: the union of the instrument
// list, current holdings, and scored instruments, keyed by symbol. Rows are
// additive and never removed within a run. The table is mutated only by the
// goroutine driving the pipeline.
type Table struct {
	rows  map[string]*Row
	order []string

	totalValue float64
}

// NewTable creates an empty portfolio table
func NewTable() *Table {
	return &Table{
		rows: make(map[string]*Row),
	}
}

// Ensure returns the row for a symbol, creating it if missing. Insertion
// order is preserved and used as the stable tie-break when sorting.
func (t *Table) Ensure(symbol string) *Row {
	if row, ok := t.rows[symbol]; ok {
		return row
	}

	row := &Row{Symbol: symbol}
	t.rows[symbol] = row
	t.order = append(t.order, symbol)
	return row
}

// Get returns the row for a symbol, or nil
func (t *Table) Get(symbol string) *Row {
	return t.rows[symbol]
}

// Symbols returns all symbols in insertion order
func (t *Table) Symbols() []string {
	symbols := make([]string, len(t.order))
	copy(symbols, t.order)
	return symbols
}

// Rows returns all rows in insertion order
func (t *Table) Rows() []*Row {
	rows := make([]*Row, len(t.order))
	for i, symbol := range t.order {
		rows[i] = t.rows[symbol]
	}
	return rows
}

// Len returns the number of rows
func (t *Table) Len() int {
	return len(t.order)
}

// TotalValue returns the total portfolio value for the run
func (t *Table) TotalValue() float64 {
	return t.totalValue
}

// SetTotalValue records the total portfolio value for the run
func (t *Table) SetTotalValue(value float64) {
	t.totalValue = value
}
