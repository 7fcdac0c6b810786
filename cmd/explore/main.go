package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkarlsen/swingbot/internal/adapters"
	"github.com/mkarlsen/swingbot/internal/config"
	"github.com/mkarlsen/swingbot/internal/hypothesis"
	"github.com/mkarlsen/swingbot/internal/memory"
	"github.com/mkarlsen/swingbot/internal/observ"
)

// The weekend explorer searches strategy-parameter space against a frozen
// historical snapshot and publishes one insight artifact. It deliberately
// has no access to the ledger, circuit state, or the broker.
func main() {
	var cfgPath string
	var snapshotPath string
	flag.StringVar(&cfgPath, "config", "config/config.yaml", "config path")
	flag.StringVar(&snapshotPath, "snapshot", "", "historical signals snapshot (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if snapshotPath == "" {
		snapshotPath = cfg.Hypothesis.SnapshotPath
	}

	obs, err := hypothesis.LoadSnapshot(snapshotPath)
	if err != nil {
		log.Fatalf("load snapshot: %v", err)
	}

	observ.Log("explore_start", map[string]any{
		"snapshot":     snapshotPath,
		"observations": len(obs),
		"max_depth":    cfg.Hypothesis.MaxDepth,
		"beam_width":   cfg.Hypothesis.BeamWidth,
		"budget_s":     cfg.Hypothesis.BudgetSeconds,
	})

	baseline := hypothesis.ParamSet{
		SentimentThreshold: cfg.Strategy.BuyThreshold,
		StopLossPct:        cfg.Risk.StopLossPct,
		TakeProfitPct:      cfg.Risk.TakeProfitPct,
		SizeMultiplier:     1.0,
	}

	res := hypothesis.Search(hypothesis.SearchConfig{
		MaxDepth:        cfg.Hypothesis.MaxDepth,
		BeamWidth:       cfg.Hypothesis.BeamWidth,
		Epsilon:         cfg.Hypothesis.Epsilon,
		FocusCandidates: hypothesis.BestPerformers(obs, 3),
		Deadline:        time.Now().Add(time.Duration(cfg.Hypothesis.BudgetSeconds) * time.Second),
	}, baseline, hypothesis.NewSnapshotEvaluator(obs))

	sel := res.Selected()
	ins := hypothesis.Insight{
		SelectedParams: sel.Params,
		Rationale:      res.Rationale(),
		Score:          sel.Score,
		BaselineScore:  res.Nodes[0].Score,
		NodesEvaluated: res.Evaluated,
		GeneratedAt:    time.Now().UTC(),
	}
	path, err := hypothesis.WriteInsight(cfg.Hypothesis.InsightDir, ins)
	if err != nil {
		log.Fatalf("write insight: %v", err)
	}
	observ.Log("insight_written", map[string]any{
		"path":      path,
		"score":     ins.Score,
		"baseline":  ins.BaselineScore,
		"evaluated": ins.NodesEvaluated,
		"timed_out": res.TimedOut,
	})

	// Feed the outcome back into semantic memory as unlabeled experience;
	// labels arrive later when live trades confirm or refute it.
	if cfg.RAG.Enabled && cfg.Memory.BaseURL != "" {
		store := adapters.NewMemoryStoreClient(cfg.Memory.BaseURL, adapters.RetryConfig{
			Timeout:     time.Duration(cfg.Memory.TimeoutMs) * time.Millisecond,
			MaxRetries:  cfg.Memory.MaxRetries,
			BackoffBase: time.Duration(cfg.Memory.BackoffBaseMs) * time.Millisecond,
			BackoffMax:  time.Duration(cfg.Memory.BackoffBaseMs) * 10 * time.Millisecond,
		})
		rec := memory.Record{
			Text: fmt.Sprintf("weekend insight: %s (score %.4f vs baseline %.4f)",
				ins.Rationale, ins.Score, ins.BaselineScore),
			Scope:      "insight",
			ObservedAt: ins.GeneratedAt,
			Outcome:    memory.Unlabeled,
		}
		if err := store.Add(context.Background(), rec); err != nil {
			observ.Error("memory_add_failed", err, nil)
		}
	}
}
