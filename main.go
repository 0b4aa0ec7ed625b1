package main

import (
	"flag"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/pthm-cable/diffgrowth/config"
	"github.com/pthm-cable/diffgrowth/sim"
	"github.com/pthm-cable/diffgrowth/telemetry"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	seed := flag.Int64("seed", 0, "RNG seed (0 = use config, then time-based)")
	rows := flag.Int("rows", 0, "Number of rows to record (0 = use config)")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")

	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		slog.Error("invalid log level", "level", *logLevel, "error", err)
		os.Exit(2)
	}
	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if *rows > 0 {
		cfg.Recorder.Rows = *rows
	}

	// Set up seed
	rngSeed := *seed
	if rngSeed == 0 {
		rngSeed = cfg.Seed.RNGSeed
	}
	if rngSeed == 0 {
		rngSeed = time.Now().UnixNano()
	}
	cfg.Seed.RNGSeed = rngSeed

	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	slog.SetDefault(logger)

	if err := run(cfg, runID, *outputDir); err != nil {
		slog.Error("simulation failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, runID, outputDir string) error {
	out, err := telemetry.NewOutputManager(outputDir)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			slog.Error("closing output", "error", err)
		}
	}()
	if err := out.WriteConfig(cfg); err != nil {
		return err
	}

	s, err := sim.New(cfg, rand.New(rand.NewSource(cfg.Seed.RNGSeed)))
	if err != nil {
		return err
	}
	defer s.Close()

	slog.Info("starting simulation",
		"seed", cfg.Seed.RNGSeed,
		"rows", cfg.Recorder.Rows,
		"iters_per_row", cfg.Recorder.ItersPerRow,
		"max_nodes", cfg.Recorder.MaxNodes,
		"output_dir", out.Dir(),
	)
	start := time.Now()

	err = s.Run(func(row sim.Row) error {
		row.Stats.RunID = runID
		if err := out.WritePositions(runID, row.Index, row.Points()); err != nil {
			return err
		}
		if err := out.WriteEdits(runID, row.Index, row.EditSites); err != nil {
			return err
		}
		if err := out.WriteStats(row.Stats); err != nil {
			return err
		}
		if row.Index == 0 {
			return nil
		}
		return out.WritePerf(s.Perf().Stats(), runID, row.Index)
	})
	if err != nil {
		return err
	}

	rows := s.Recorder().Rows()
	last := rows[len(rows)-1]
	slog.Info("simulation complete",
		"rows", len(rows),
		"nodes", last.Count,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
		"perf", s.Perf().Stats(),
	)
	return nil
}
