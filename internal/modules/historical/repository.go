// Package historical maintains the daily price cache and derives the weekly
// series used for scoring.
package historical

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bprzybysz/autobroker/internal/domain"
	"github.com/rs/zerolog"
)

// PriceRepository provides access to the daily price cache
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new daily price cache accessor
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "prices").Logger(),
	}
}

// UpsertBars stores daily bars for a symbol, replacing existing rows for the
// same date
func (r *PriceRepository) UpsertBars(symbol string, bars []domain.DailyBar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO daily_prices (symbol, date, close)
		VALUES (?, ?, ?)
		ON CONFLICT (symbol, date) DO UPDATE SET close = excluded.close
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if _, err := stmt.Exec(symbol, bar.Date.Format("2006-01-02"), bar.Close); err != nil {
			return fmt.Errorf("failed to upsert bar %s/%s: %w", symbol, bar.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bars: %w", err)
	}

	r.log.Debug().Str("symbol", symbol).Int("bars", len(bars)).Msg("Cached daily bars")

	return nil
}

// GetDailySeries returns the cached daily series for a symbol ordered
// oldest to newest
func (r *PriceRepository) GetDailySeries(symbol string) ([]domain.DailyBar, error) {
	rows, err := r.db.Query(`
		SELECT date, close
		FROM daily_prices
		WHERE symbol = ?
		ORDER BY date ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily prices: %w", err)
	}
	defer rows.Close()

	var bars []domain.DailyBar
	for rows.Next() {
		var dateStr string
		var bar domain.DailyBar

		if err := rows.Scan(&dateStr, &bar.Close); err != nil {
			return nil, fmt.Errorf("failed to scan daily price: %w", err)
		}

		bar.Date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse cached date %q: %w", dateStr, err)
		}

		bars = append(bars, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily prices: %w", err)
	}

	return bars, nil
}

// DeleteBefore removes cached bars older than the given date for all symbols
func (r *PriceRepository) DeleteBefore(cutoff time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM daily_prices WHERE date < ?`, cutoff.Format("2006-01-02"))
	if err != nil {
		return 0, fmt.Errorf("failed to prune daily prices: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned rows: %w", err)
	}

	return deleted, nil
}
