package historical

import (
	"fmt"
	"time"

	"github.com/bprzybysz/autobroker/internal/domain"
)

// WeeklyPoints is the number of weekly closes required for scoring. One year
// of data yields only 52 weekly points, which is why the daily lookback must
// cover more than a single year.
const WeeklyPoints = 53

// WeeklyPoint is a single week-start close in a weekly series
type WeeklyPoint struct {
	Date  time.Time `json:"date"`
	Close float64   `json:"close"`
}

// WeeklySeries is an ordered (oldest to newest) weekly close series for one
// instrument. All points fall on the same weekday and no point is missing.
type WeeklySeries struct {
	Symbol string        `json:"symbol"`
	Points []WeeklyPoint `json:"points"`
}

// Closes returns the close values oldest to newest
func (s *WeeklySeries) Closes() []float64 {
	closes := make([]float64, len(s.Points))
	for i, p := range s.Points {
		closes[i] = p.Close
	}
	return closes
}

// BuildWeeklySeries derives a weekly series from a daily close series.
//
// The weekday of the most recent bar anchors the series: the 53 most recent
// calendar dates falling on that weekday are selected, newest first, then
// reversed into oldest-to-newest order. A selected date with no bar (holiday,
// halt, short gap) is filled by walking backward one calendar day at a time
// until a present close is found.
//
// If the backward walk runs off the start of the daily series the instrument
// does not have enough history; that is a data-quality error, not something
// to paper over with a partial series.
func BuildWeeklySeries(symbol string, daily []domain.DailyBar) (*WeeklySeries, error) {
	if len(daily) == 0 {
		return nil, fmt.Errorf("no daily bars for %s", symbol)
	}

	closes := make(map[string]float64, len(daily))
	for _, bar := range daily {
		closes[bar.Date.Format("2006-01-02")] = bar.Close
	}

	oldest := daily[0].Date
	newest := daily[len(daily)-1].Date

	points := make([]WeeklyPoint, 0, WeeklyPoints)
	for date := newest; len(points) < WeeklyPoints; date = date.AddDate(0, 0, -7) {
		close, err := closeOnOrBefore(closes, date, oldest)
		if err != nil {
			return nil, fmt.Errorf("insufficient history for %s: %w", symbol, err)
		}
		points = append(points, WeeklyPoint{Date: date, Close: close})
	}

	// Reverse into oldest-to-newest order
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}

	return &WeeklySeries{Symbol: symbol, Points: points}, nil
}

// closeOnOrBefore returns the close for the given date, walking backward one
// calendar day at a time until a present value is found. The walk fails once
// it passes the oldest bar in the series.
func closeOnOrBefore(closes map[string]float64, date, oldest time.Time) (float64, error) {
	for d := date; !d.Before(oldest); d = d.AddDate(0, 0, -1) {
		if close, ok := closes[d.Format("2006-01-02")]; ok {
			return close, nil
		}
	}
	return 0, fmt.Errorf("no close on or before %s", date.Format("2006-01-02"))
}
