package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"mt5-ensemble-bot/internal/logger"
	"mt5-ensemble-bot/internal/stats"
	"mt5-ensemble-bot/internal/store"
	"mt5-ensemble-bot/internal/trace"
	"mt5-ensemble-bot/internal/tradelog"
)

func main() {
	if err := initializeSystem(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := os.Getenv("BOT_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := store.LoadConfig(cfgPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load configuration", err, "path", cfgPath)
		os.Exit(1)
	}
	logger.Info(ctx, "Configuration loaded",
		"path", cfgPath,
		"mode", cfg.Mode,
		"symbols", cfg.Symbols,
		"models", len(cfg.Ensemble.Models),
	)

	if v := os.Getenv("TRADER_LOG_RETENTION_DAYS"); v != "" {
		var n int
		fmt.Sscanf(v, "%d", &n)
		if err := tradelog.CompressOlder(filepath.Dir(cfg.Dispatch.AuditPath), n); err != nil {
			logger.Warn(ctx, "Audit log compression failed", "error", err)
		}
	}

	brk, err := initializeBroker(ctx, cfg)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to initialize broker", err)
		os.Exit(1)
	}

	st := stats.New(cfg.Stats.Path, time.Duration(cfg.Stats.FlushIntervalSec)*time.Second)
	st.StartFlusher()

	eng, step := initializeEngine(ctx, cfg, brk, st)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigc
		logger.Info(ctx, "Shutdown signal received", "signal", s.String())
		cancel()
	}()

	eng.Run(ctx, step)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	st.Stop()
	brk.Close(shutdownCtx)
	if err := trace.Shutdown(shutdownCtx); err != nil {
		logger.Warn(shutdownCtx, "Tracer shutdown failed", "error", err)
	}
	_ = logger.Shutdown(shutdownCtx)
}
