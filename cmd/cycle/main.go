package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkarlsen/swingbot/internal/adapters"
	"github.com/mkarlsen/swingbot/internal/config"
	"github.com/mkarlsen/swingbot/internal/engine"
	"github.com/mkarlsen/swingbot/internal/journal"
	"github.com/mkarlsen/swingbot/internal/ledger"
	"github.com/mkarlsen/swingbot/internal/memory"
	"github.com/mkarlsen/swingbot/internal/observ"
	"github.com/mkarlsen/swingbot/internal/risk"
)

func main() {
	var cfgPath string
	var signalsPath string
	var dryRun bool
	var simMode bool
	var oneShot bool
	var metricsAddr string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&signalsPath, "signals", "fixtures/signals.json", "per-ticker signals fixture path")
	flag.BoolVar(&dryRun, "dry-run", false, "evaluate everything but submit no orders")
	flag.BoolVar(&simMode, "sim", false, "use in-memory broker instead of the live Alpaca client")
	flag.BoolVar(&oneShot, "oneshot", true, "exit after one cycle (set false to keep /metrics server)")
	flag.StringVar(&metricsAddr, "metrics-addr", ":8090", "metrics/health listen address")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v (did you copy config.example.yaml?)", err)
	}
	if os.Getenv("DRY_RUN") == "true" {
		dryRun = true
	}
	if os.Getenv("BROKER_ENDPOINT") != "" {
		cfg.Broker.Endpoint = os.Getenv("BROKER_ENDPOINT")
	}

	observ.Log("startup", map[string]any{
		"universe":             cfg.Universe,
		"capital":              cfg.Capital,
		"dry_run":              dryRun,
		"sim":                  simMode,
		"use_weekend_insights": cfg.UseWeekendInsights,
	})

	brokerRetry := adapters.RetryConfig{
		Timeout:     time.Duration(cfg.Broker.TimeoutMs) * time.Millisecond,
		MaxRetries:  cfg.Broker.MaxRetries,
		BackoffBase: time.Duration(cfg.Broker.BackoffBaseMs) * time.Millisecond,
		BackoffMax:  time.Duration(cfg.Broker.BackoffMaxMs) * time.Millisecond,
	}

	feed, err := adapters.LoadSignalsFile(signalsPath)
	if err != nil {
		log.Fatalf("load signals: %v", err)
	}

	var broker adapters.Broker
	if simMode {
		broker = adapters.NewSimBroker(nil)
	} else {
		broker = adapters.NewAlpacaBroker(adapters.AlpacaConfig{
			BaseURL:         cfg.Broker.Endpoint,
			RateLimitPerMin: cfg.Broker.RateLimitPerMin,
			Retry:           brokerRetry,
		})
	}

	var retriever *memory.Retriever
	if cfg.RAG.Enabled && cfg.Memory.BaseURL != "" {
		store := adapters.NewMemoryStoreClient(cfg.Memory.BaseURL, adapters.RetryConfig{
			Timeout:     time.Duration(cfg.Memory.TimeoutMs) * time.Millisecond,
			MaxRetries:  cfg.Memory.MaxRetries,
			BackoffBase: time.Duration(cfg.Memory.BackoffBaseMs) * time.Millisecond,
			BackoffMax:  time.Duration(cfg.Memory.BackoffBaseMs) * 10 * time.Millisecond,
		})
		retriever = memory.NewRetriever(memory.RetrieverConfig{
			Enabled:         true,
			NSimilarResults: cfg.RAG.NSimilarResults,
			ConfidenceFloor: cfg.RAG.ConfidenceFloor,
		}, store)
	}

	jrn, err := journal.Open(cfg.Paths.Journal, engine.DedupeWindow)
	if err != nil {
		log.Fatalf("open journal: %v", err)
	}
	circuit := risk.NewCircuitBreaker(cfg.Paths.Circuit, cfg.Paths.KillSwitch, risk.Limits{
		DailyLossLimitPct:    cfg.Risk.DailyLossLimitPct,
		Capital:              cfg.Capital,
		MaxTradesPerDay:      cfg.Risk.MaxTradesPerDay,
		MaxConsecutiveLosses: cfg.Risk.MaxConsecutiveLosses,
	})
	if err := circuit.Load(time.Now()); err != nil {
		log.Fatalf("load circuit state: %v", err)
	}

	if !oneShot {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observ.Handler())
		mux.Handle("/health", observ.HealthHandler())
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				observ.Error("metrics_server_failed", err, nil)
			}
		}()
	}

	rep := engine.RunCycle(context.Background(), engine.Deps{
		Cfg:     cfg,
		Feed:    feed,
		Broker:  broker,
		Ledger:  ledger.New(cfg.Paths.Ledger),
		Circuit: circuit,
		Journal: jrn,
		Memory:  retriever,
		Now:     time.Now,
		DryRun:  dryRun,
	})

	observ.Log("cycle_done", map[string]any{"summary": rep.Summary()})
	if oneShot {
		return
	}
	select {}
}
