package server

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/bprzybysz/autobroker/internal/modules/rebalancing"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if !s.gateway.IsConnected() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	s.writeJSON(w, code, map[string]interface{}{
		"status":            status,
		"service":           "autobroker",
		"gateway_connected": s.gateway.IsConnected(),
	})
}

// handleSystemStatus handles system status requests
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	cpuAvg, ramPct := s.hostStats()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "running",
		"rebalance_running": s.rebalancing.Running(),
		"memory": map[string]interface{}{
			"alloc_mb": m.Alloc / 1024 / 1024,
			"sys_mb":   m.Sys / 1024 / 1024,
			"num_gc":   m.NumGC,
		},
		"goroutines":  runtime.NumGoroutine(),
		"cpu_percent": cpuAvg,
		"ram_percent": ramPct,
	})
}

// hostStats samples host CPU and memory usage. The 100ms CPU window keeps
// the endpoint responsive for dashboard polling.
func (s *Server) hostStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// handleRebalanceRun triggers a rebalance run. Runs can take hours once
// execution phases start waiting on fills, so the run happens in the
// background and the report is fetched from /api/rebalance/report.
func (s *Server) handleRebalanceRun(w http.ResponseWriter, r *http.Request) {
	if s.rebalancing.Running() {
		s.writeError(w, http.StatusConflict, "a rebalance run is already in progress")
		return
	}

	go func() {
		if _, err := s.rebalancing.Run(); err != nil {
			s.log.Error().Err(err).Msg("Rebalance run failed")
		}
	}()

	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "started",
	})
}

// handleLatestReport returns the report of the most recent run
func (s *Server) handleLatestReport(w http.ResponseWriter, r *http.Request) {
	report := s.rebalancing.LastReport()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no rebalance run yet")
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// handlePortfolio returns the portfolio table of the most recent run
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	report := s.rebalancing.LastReport()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no rebalance run yet")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"run_id":      report.RunID,
		"account":     report.Account,
		"total_value": report.TotalValue,
		"rows":        report.Rows,
	})
}

// handleTrades returns recent journaled trades
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	trades, err := s.journal.RecentTrades(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load trades")
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}

	if trades == nil {
		trades = []rebalancing.TradeRecord{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"trades": trades,
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{
		"error": message,
	})
}
