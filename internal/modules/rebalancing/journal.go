package rebalancing

import (
	"fmt"
	"time"

	"github.com/bprzybysz/autobroker/internal/database"
	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// TradeRecord is one journaled order
type TradeRecord struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	OrderType string    `json:"order_type"`
	Quantity  int       `json:"quantity"`
	Filled    bool      `json:"filled"`
	Escalated bool      `json:"escalated"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal persists executed orders to the trades table, one row per
// submitted order, keyed by run
type Journal struct {
	db  *database.DB
	log zerolog.Logger
}

// NewJournal creates a new trade journal
func NewJournal(db *database.DB, log zerolog.Logger) *Journal {
	return &Journal{
		db:  db,
		log: log.With().Str("repo", "trade_journal").Logger(),
	}
}

// RecordOrder journals a completed order for a run. Escalated replacements
// carry SourceOrderID and are marked as such.
func (j *Journal) RecordOrder(runID string, handle *domain.TradeHandle, filled bool) error {
	escalated := handle.SourceOrderID != ""

	_, err := j.db.Exec(`
		INSERT INTO trades (run_id, order_id, symbol, side, order_type, quantity, filled, escalated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID,
		handle.OrderID,
		handle.Intent.Symbol,
		string(handle.Intent.Side),
		handle.Intent.OrderType,
		handle.Intent.Quantity,
		boolToInt(filled),
		boolToInt(escalated),
	)
	if err != nil {
		return fmt.Errorf("failed to journal order %s: %w", handle.OrderID, err)
	}

	return nil
}

// RunTrades returns all journaled orders for a run, oldest first
func (j *Journal) RunTrades(runID string) ([]TradeRecord, error) {
	return j.query(`
		SELECT id, run_id, order_id, symbol, side, order_type, quantity, filled, escalated, created_at
		FROM trades WHERE run_id = ? ORDER BY id ASC
	`, runID)
}

// RecentTrades returns the most recently journaled orders, newest first
func (j *Journal) RecentTrades(limit int) ([]TradeRecord, error) {
	return j.query(`
		SELECT id, run_id, order_id, symbol, side, order_type, quantity, filled, escalated, created_at
		FROM trades ORDER BY id DESC LIMIT ?
	`, limit)
}

func (j *Journal) query(query string, args ...interface{}) ([]TradeRecord, error) {
	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var records []TradeRecord
	for rows.Next() {
		var rec TradeRecord
		var filled, escalated int
		var createdAt string

		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.OrderID, &rec.Symbol, &rec.Side,
			&rec.OrderType, &rec.Quantity, &filled, &escalated, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}

		rec.Filled = filled != 0
		rec.Escalated = escalated != 0
		if ts, err := time.Parse("2006-01-02 15:04:05", createdAt); err == nil {
			rec.CreatedAt = ts
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
