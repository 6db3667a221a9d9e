package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/eedt-data/drift.report/internal/api"
	"github.com/eedt-data/drift.report/internal/config"
	"github.com/eedt-data/drift.report/internal/counts"
	"github.com/eedt-data/drift.report/internal/stabilizer"
	"github.com/eedt-data/drift.report/internal/store"
	"github.com/eedt-data/drift.report/internal/t1"
	"github.com/eedt-data/drift.report/internal/version"
)

var (
	devMode       = flag.Bool("dev", false, "Run with a deterministic simulator seed")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbPath        = flag.String("db", "drift_runs.db", "Path to the sqlite run database")
	configPath    = flag.String("config", "", "Path to a JSON tuning config")
	migrationsDir = flag.String("migrations", "migrations", "Path to migration files")
)

// T1 calibration cadence and probe layout.
const (
	calibrationEvery = 50 // circuits between decay calibrations
	scoutQubits      = 3
)

var calibrationDelaysUs = []float64{5, 20, 40, 80, 160}

// Main
func main() {
	flag.Parse()

	if flag.Arg(0) == "migrate" {
		runMigrateCommand(flag.Args()[1:], *dbPath, *migrationsDir)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	log.Printf("drift-report %s (%s)", version.Version, version.GitSHA)

	tuning := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	}
	cfg := stabilizer.ConfigFromTuning(tuning)

	seed := time.Now().UnixNano()
	if *devMode {
		seed = 1
	}
	exec := stabilizer.NewSimExecutor(seed)

	db, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	stab, err := stabilizer.New(exec, cfg)
	if err != nil {
		log.Fatalf("Failed to create stabilizer: %v", err)
	}
	log.Printf("Started stabilizer session %s", stab.SessionID())

	// Wait group for the workload loop and the HTTP server routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// workload loop: drive circuits through the adaptive correction loop
	// and calibrate the relaxation time periodically
	wg.Add(1)
	go func() {
		defer wg.Done()
		runWorkload(ctx, stab, db, exec, tuning)
		log.Print("workload routine terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(stab, db, cfg).ServeMux()

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// runWorkload submits circuits through the stabilizer until the context
// is cancelled, calibrating T1 every calibrationEvery circuits. The
// final session statistics are persisted as a run on shutdown.
func runWorkload(ctx context.Context, stab *stabilizer.Stabilizer, db *store.Store, exec stabilizer.Executor, tuning *config.TuningConfig) {
	started := time.Now().UTC()
	spec := stabilizer.CircuitSpec{Name: "workload", Qubits: 2}

	var lastT1, lastInterval float64
	circuits := 0

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			stats := stab.Statistics()
			run := &store.DriftRun{
				ID:                    stats.SessionID,
				StartedAt:             started,
				FinishedAt:            time.Now().UTC(),
				TotalCircuits:         stats.TotalCircuits,
				NominalCount:          stats.NominalCount,
				CorrectiveCount:       stats.CorrectiveCount,
				AverageOverhead:       stats.AverageOverhead,
				FinalMode:             stats.CurrentMode.String(),
				EstimatedPhase:        stats.EstimatedPhase,
				MeanFidelity:          stats.MeanFidelity(),
				T1Us:                  lastT1,
				RecommendedIntervalUs: lastInterval,
				FidelityHistory:       stats.FidelityHistory,
				FilterHistory:         stats.FilterHistory,
			}
			if err := db.InsertRun(run); err != nil {
				log.Printf("failed to persist session run: %v", err)
			} else {
				log.Printf("persisted session run %s (%d circuits)", run.ID, run.TotalCircuits)
			}
			return

		case <-ticker.C:
			if _, err := stab.Run(ctx, spec, 0); err != nil {
				if errors.Is(err, context.Canceled) {
					continue
				}
				log.Printf("workload circuit failed: %v", err)
				continue
			}
			circuits++

			if circuits%calibrationEvery == 0 {
				fit, err := calibrateT1(ctx, exec, tuning)
				if err != nil {
					log.Printf("T1 calibration failed: %v", err)
					continue
				}
				lastT1 = fit.T1Us
				lastInterval = t1.RecommendInterval(fit.T1Us, tuning.GetSurvivalThreshold())
				log.Printf("T1 calibration: T1=%.1fµs recommended_interval=%.1fµs", lastT1, lastInterval)
			}
		}
	}
}

// calibrateT1 runs decay circuits across the calibration delays and fits
// the survival curve.
func calibrateT1(ctx context.Context, exec stabilizer.Executor, tuning *config.TuningConfig) (t1.DecayFit, error) {
	allOnes := strings.Repeat("1", scoutQubits)

	survivals := make([]float64, 0, len(calibrationDelaysUs))
	for _, delay := range calibrationDelaysUs {
		c, err := exec.Execute(ctx, stabilizer.CircuitSpec{
			Name:    stabilizer.CircuitT1Decay,
			Qubits:  scoutQubits,
			DelayUs: delay,
		}, tuning.GetMonitoringShots())
		if err != nil {
			return t1.DecayFit{}, err
		}
		survivals = append(survivals, counts.Survival(c, allOnes))
	}

	return t1.FitDecay(calibrationDelaysUs, survivals)
}
