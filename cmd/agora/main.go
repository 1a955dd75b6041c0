// Command agora trains neural decision policies on an agent-based economy.
//
// Usage:
//
//	agora [flags] [numPersons] [numFirms] [numEpisodes] [episodeLength]
//
// The positional arguments default to (20, 4, 10, 10).
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/aidenlippert/agora/libs/economy"
	"github.com/aidenlippert/agora/libs/metrics"
	"github.com/aidenlippert/agora/libs/report"
	"github.com/aidenlippert/agora/libs/scenario"
	"github.com/aidenlippert/agora/libs/telemetry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Parse command-line flags
	var (
		verbose     = flag.Int("verbose", 1, "Output volume (0-3)")
		debug       = flag.Bool("debug", false, "Enable debug logging (same as -verbose 2)")
		seed        = flag.Int64("seed", 0, "RNG seed (0 uses the current time)")
		modelDir    = flag.String("model-dir", "models", "Directory for model checkpoints")
		metricsAddr = flag.String("metrics-addr", "", "Serve prometheus metrics on this address")
		reportPath  = flag.String("report", "", "Write a loss-curve HTML report to this path")
		simple      = flag.Bool("simple", false, "Run the fixed three-agent scenario")
	)
	flag.Parse()

	// Load .env and apply environment overrides
	_ = godotenv.Load()
	if os.Getenv("LOG_LEVEL") == "debug" {
		*debug = true
	}
	if dir := os.Getenv("AGORA_MODEL_DIR"); dir != "" && *modelDir == "models" {
		*modelDir = dir
	}
	if addr := os.Getenv("AGORA_METRICS_ADDR"); addr != "" && *metricsAddr == "" {
		*metricsAddr = addr
	}
	if *debug && *verbose < 2 {
		*verbose = 2
	}

	logger, err := telemetry.NewLogger(telemetry.ForVerbosity("agora", *verbose))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	numPersons := positional(logger, 0, 20)
	numFirms := positional(logger, 1, 4)
	numEpisodes := positional(logger, 2, 10)
	episodeLength := positional(logger, 3, 10)

	runID := uuid.New().String()
	logger.Info("starting training run",
		telemetry.RunID(runID),
		zap.Int("num_persons", numPersons),
		zap.Int("num_firms", numFirms),
		zap.Int("num_episodes", numEpisodes),
		zap.Int("episode_length", episodeLength),
	)

	// Shared metrics registry
	registry := metrics.NewRegistry()
	simMetrics := metrics.NewSimMetrics(registry)
	trainerMetrics := metrics.NewTrainerMetrics(registry)
	if *metricsAddr != "" {
		go func() {
			logger.Info("serving metrics", zap.String("addr", *metricsAddr))
			mux := http.NewServeMux()
			mux.Handle("/metrics", registry.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	cfg := economy.DefaultConfig()
	cfg.Verbose = *verbose

	opts := []scenario.Option{
		scenario.WithLogger(logger),
		scenario.WithConfig(cfg),
		scenario.WithSimMetrics(simMetrics),
		scenario.WithTrainerMetrics(trainerMetrics),
	}
	var scn scenario.Scenario
	if *simple {
		scn = scenario.NewSimpleScenario(rng, opts...)
	} else {
		scn = scenario.NewCustomScenario(
			scenario.DefaultPopulationParams(numPersons, numFirms),
			rng,
			opts...,
		)
	}

	params := scenario.DefaultTrainingParams()
	params.NumEpisodes = numEpisodes
	params.EpisodeLength = episodeLength
	params.ModelDir = *modelDir

	losses, err := scenario.Train(scn, params, logger)
	if err != nil {
		logger.Error("training failed", telemetry.RunID(runID), zap.Error(err))
		os.Exit(1)
	}

	if *reportPath != "" {
		if err := report.WriteLossChart(*reportPath, runID, losses); err != nil {
			logger.Error("report failed", zap.Error(err))
			os.Exit(1)
		}
		logger.Info("wrote loss report", zap.String("path", *reportPath))
	}

	if len(losses) > 0 {
		logger.Info("run finished",
			telemetry.RunID(runID),
			telemetry.Loss(losses[len(losses)-1]),
		)
	}
}

// positional reads the i'th positional argument, which must be a positive
// integer.
func positional(logger *zap.Logger, i, fallback int) int {
	if flag.NArg() <= i {
		return fallback
	}
	v, err := strconv.Atoi(flag.Arg(i))
	if err != nil || v < 1 {
		logger.Error("invalid argument",
			zap.Int("position", i+1),
			zap.String("value", flag.Arg(i)),
		)
		os.Exit(1)
	}
	return v
}
