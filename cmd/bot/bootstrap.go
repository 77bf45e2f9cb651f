package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"mt5-ensemble-bot/internal/broker/brokerobs"
	"mt5-ensemble-bot/internal/broker/mt5"
	"mt5-ensemble-bot/internal/cascade"
	"mt5-ensemble-bot/internal/dispatch"
	"mt5-ensemble-bot/internal/engine"
	"mt5-ensemble-bot/internal/engine/engineobs"
	"mt5-ensemble-bot/internal/ensemble"
	"mt5-ensemble-bot/internal/interfaces"
	"mt5-ensemble-bot/internal/llm/llamacli"
	"mt5-ensemble-bot/internal/llm/noop"
	"mt5-ensemble-bot/internal/llm/ollamad"
	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/risk"
	"mt5-ensemble-bot/internal/rl"
	"mt5-ensemble-bot/internal/stats"
	"mt5-ensemble-bot/internal/store"
	"mt5-ensemble-bot/internal/strategy"
	"mt5-ensemble-bot/internal/trace"
	"mt5-ensemble-bot/internal/tradelog"
)

// initializeSystem initializes env, logger and tracer.
func initializeSystem() error {
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}
	return nil
}

func initializeBroker(ctx context.Context, cfg *store.Config) (interfaces.Broker, error) {
	brk, err := mt5.New(ctx, mt5.Params{
		Mode:    cfg.Mode,
		URL:     bridgeURL(cfg),
		Timeout: time.Duration(cfg.Bridge.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Mode == "DRY_RUN" {
		logger.Warn(ctx, "Running in DRY_RUN mode - orders will be simulated")
	} else {
		logger.Info(ctx, "Connected to MetaTrader bridge", "url", bridgeURL(cfg))
	}
	return brokerobs.Wrap(brk), nil
}

func bridgeURL(cfg *store.Config) string {
	if v := os.Getenv("MT5_BRIDGE_URL"); v != "" {
		return v
	}
	return cfg.Bridge.URL
}

func initializeModels(ctx context.Context, cfg *store.Config) []interfaces.Generator {
	models := make([]interfaces.Generator, 0, len(cfg.Ensemble.Models))
	for _, mc := range cfg.Ensemble.Models {
		switch mc.Kind {
		case "HTTP":
			models = append(models, ollamad.New(mc.ID, mc.Endpoint, mc.Model, mc.Temp))
		case "CLI":
			models = append(models, llamacli.New(mc.ID, mc.Binary, mc.ModelPath, mc.Threads, mc.Predict, mc.Temp))
		default:
			logger.Warn(ctx, "Unknown model kind, skipping", "model", mc.ID, "kind", mc.Kind)
		}
	}
	if len(models) == 0 {
		logger.Warn(ctx, "No model backends configured - using noop adapter (always HOLD)")
		models = append(models, noop.New(""))
	}
	return models
}

func initializeEngine(ctx context.Context, cfg *store.Config, brk interfaces.Broker, st *stats.Store) (*engine.Engine, interfaces.Engine) {
	runner := ensemble.NewRunner(st,
		time.Duration(cfg.Ensemble.CallTimeoutSec)*time.Second,
		time.Duration(cfg.Ensemble.BackoffSeconds)*time.Second)
	voter := ensemble.NewVoter(runner, st, initializeModels(ctx, cfg), ensemble.VoterConfig{
		ActiveModels:   cfg.Ensemble.ActiveModels,
		PromptMaxChars: cfg.Ensemble.PromptMaxChars,
		TotalTimeout:   time.Duration(cfg.Ensemble.TotalTimeoutSec) * time.Second,
		MinBucketScore: cfg.Ensemble.MinBucketScore,
	})

	registry := strategy.NewRegistry()
	if cfg.Strategies.Enabled {
		strategy.RegisterBuiltins(registry)
		logger.Info(ctx, "Strategies registered", "count", registry.Len())
	}
	meta := strategy.NewMetaVoter(registry, strategy.MetaVoterConfig{
		Weights:       cfg.Strategies.Weights,
		MinConfidence: cfg.Strategies.HybridMinConfidence,
		Timeout:       time.Duration(cfg.Strategies.TimeoutSeconds) * time.Second,
		Workers:       cfg.Strategies.Workers,
	})

	casc := cascade.New(rl.NoopPolicy{}, cascade.Config{
		ExternalMinConfidence: cfg.Cascade.ExternalMinConfidence,
		MinBucketScore:        cfg.Ensemble.MinBucketScore,
		HybridExternalFloor:   cfg.Cascade.HybridExternalFloor,
		HybridConfidenceCap:   cfg.Cascade.HybridConfidenceCap,
		RLOverrideConfidence:  cfg.Cascade.RLOverrideConfidence,
		RSIPeriod:             cfg.Indicators.RSIPeriod,
		MAFast:                cfg.Indicators.MAFast,
		MASlow:                cfg.Indicators.MASlow,
	})

	normaliser := risk.NewNormaliser(risk.NormaliserConfig{
		PerTradeRiskPct: cfg.Risk.PerTradeRiskPct,
		PipValueEst:     cfg.Risk.PipValueEst,
		MaxVolume:       cfg.Risk.MaxVolume,
	})
	gate := risk.NewGate(risk.GateConfig{
		MinTradeInterval: time.Duration(cfg.Risk.MinTradeInterval) * time.Second,
		MinConfidence:    cfg.Risk.MinConfidence,
	})

	trades := tradelog.NewWriter(cfg.Dispatch.AuditPath, cfg.Dispatch.HistoryCSVPath)
	dispatcher := dispatch.New(brk, gate, trades, st, dispatch.Config{
		MaxRetries:    cfg.Dispatch.MaxRetries,
		BackoffBase:   time.Duration(cfg.Dispatch.BackoffBaseMs) * time.Millisecond,
		FillingLadder: cfg.Dispatch.FillingLadder,
	})

	eng := engine.New(cfg, brk, voter, meta, casc, normaliser, gate, dispatcher,
		engine.NewSignalBuffer(64), trades)
	return eng, engineobs.Wrap(eng)
}
