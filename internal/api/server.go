package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eedt-data/drift.report/internal/monitoring"
	"github.com/eedt-data/drift.report/internal/report"
	"github.com/eedt-data/drift.report/internal/stabilizer"
	"github.com/eedt-data/drift.report/internal/store"
	"github.com/eedt-data/drift.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the stabilizer session and the run history over HTTP.
type Server struct {
	stab *stabilizer.Stabilizer
	db   *store.Store
	cfg  stabilizer.Config
}

func NewServer(stab *stabilizer.Stabilizer, db *store.Store, cfg stabilizer.Config) *Server {
	return &Server{
		stab: stab,
		db:   db,
		cfg:  cfg,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/run", s.showRun)
	mux.HandleFunc("/api/snapshot", s.snapshotRun)
	mux.HandleFunc("/api/reset", s.resetSession)
	mux.HandleFunc("/api/charts/drift", s.driftChart)
	mux.HandleFunc("/api/charts/fidelity", s.fidelityChart)
	mux.HandleFunc("/api/charts/t1", s.t1Chart)
	return mux
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	if err := json.NewEncoder(w).Encode(s.stab.Statistics()); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write status")
		return
	}
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	config := map[string]interface{}{
		"version":             version.Version,
		"process_noise":       s.cfg.Filter.ProcessNoise,
		"measurement_noise":   s.cfg.Filter.MeasurementNoise,
		"fidelity_threshold":  s.cfg.Controller.Threshold,
		"hysteresis":          s.cfg.Controller.Hysteresis,
		"shots":               s.cfg.Shots,
		"monitoring_shots":    s.cfg.MonitoringShots,
		"monitoring_interval": s.cfg.MonitoringInterval,
	}

	if err := json.NewEncoder(w).Encode(config); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write config")
		return
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	runs, err := s.db.ListRuns(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if runs == nil {
		runs = []*store.DriftRun{}
	}

	if err := json.NewEncoder(w).Encode(runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write runs")
		return
	}
}

func (s *Server) showRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "Missing 'id' parameter")
		return
	}

	run, err := s.db.GetRun(id)
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve run: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(run); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write run")
		return
	}
}

// snapshotRun persists the current session statistics as a run record.
func (s *Server) snapshotRun(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	stats := s.stab.Statistics()
	run := &store.DriftRun{
		ID:              stats.SessionID,
		FinishedAt:      time.Now().UTC(),
		TotalCircuits:   stats.TotalCircuits,
		NominalCount:    stats.NominalCount,
		CorrectiveCount: stats.CorrectiveCount,
		AverageOverhead: stats.AverageOverhead,
		FinalMode:       stats.CurrentMode.String(),
		EstimatedPhase:  stats.EstimatedPhase,
		MeanFidelity:    stats.MeanFidelity(),
		FidelityHistory: stats.FidelityHistory,
		FilterHistory:   stats.FilterHistory,
	}
	if err := s.db.InsertRun(run); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to store snapshot: %v", err))
		return
	}

	if err := json.NewEncoder(w).Encode(map[string]string{"id": run.ID}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write snapshot id")
		return
	}
}

func (s *Server) resetSession(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	s.stab.Reset()
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "reset"}); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write reset status")
		return
	}
}

// chartRun resolves the run a chart request refers to: explicit id, or
// the most recent stored run.
func (s *Server) chartRun(w http.ResponseWriter, r *http.Request) *store.DriftRun {
	var run *store.DriftRun
	var err error
	if id := r.URL.Query().Get("id"); id != "" {
		run, err = s.db.GetRun(id)
	} else {
		run, err = s.db.LatestRun()
	}
	if errors.Is(err, store.ErrNotFound) {
		s.writeJSONError(w, http.StatusNotFound, "No runs recorded yet")
		return nil
	}
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to load run: %v", err))
		return nil
	}
	return run
}

func (s *Server) driftChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	run := s.chartRun(w, r)
	if run == nil {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderDriftChart(w, run); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
}

func (s *Server) fidelityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	run := s.chartRun(w, r)
	if run == nil {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderFidelityChart(w, run, s.cfg.Controller.Threshold, s.cfg.Controller.Hysteresis); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
}

// t1Chart plots the fitted relaxation time across the stored run
// history rather than within a single run.
func (s *Server) t1Chart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	runs, err := s.db.ListRuns(100)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve runs: %v", err))
		return
	}
	if len(runs) == 0 {
		s.writeJSONError(w, http.StatusNotFound, "No runs recorded yet")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := report.RenderT1Chart(w, runs); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to render chart: %v", err))
		return
	}
}
