package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "universe: [AAPL, MSFT]\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capital != 10000 {
		t.Errorf("capital default = %v, want 10000", cfg.Capital)
	}
	if cfg.Strategy.BuyThreshold != 0.4 {
		t.Errorf("buy_threshold default = %v, want 0.4", cfg.Strategy.BuyThreshold)
	}
	if cfg.Strategy.SentimentWeight != 0.5 || cfg.Strategy.MomentumWeight != 0.5 {
		t.Errorf("weights default = %v/%v, want 0.5/0.5", cfg.Strategy.SentimentWeight, cfg.Strategy.MomentumWeight)
	}
	if cfg.Risk.MinHoldHours != 24 || cfg.Risk.MaxHoldDays != 7 {
		t.Errorf("hold defaults = %d/%d, want 24/7", cfg.Risk.MinHoldHours, cfg.Risk.MaxHoldDays)
	}
	if cfg.Risk.MaxConsecutiveLosses != 3 {
		t.Errorf("max_consecutive_losses default = %d, want 3", cfg.Risk.MaxConsecutiveLosses)
	}
	if cfg.Paths.KillSwitch != "STOP_TRADING" {
		t.Errorf("kill_switch default = %q", cfg.Paths.KillSwitch)
	}
}

func TestLoadExplicitValuesWin(t *testing.T) {
	path := writeConfig(t, `
universe: [NVDA]
capital: 25000
strategy:
  buy_threshold: 0.55
  max_positions: 3
risk:
  stop_loss_pct: 0.06
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Capital != 25000 {
		t.Errorf("capital = %v, want 25000", cfg.Capital)
	}
	if cfg.Strategy.BuyThreshold != 0.55 {
		t.Errorf("buy_threshold = %v, want 0.55", cfg.Strategy.BuyThreshold)
	}
	if cfg.Strategy.MaxPositions != 3 {
		t.Errorf("max_positions = %d, want 3", cfg.Strategy.MaxPositions)
	}
	if cfg.Risk.StopLossPct != 0.06 {
		t.Errorf("stop_loss_pct = %v, want 0.06", cfg.Risk.StopLossPct)
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty universe", "capital: 1000\n"},
		{"negative capital", "universe: [AAPL]\ncapital: -5\n"},
		{"alloc above one", "universe: [AAPL]\nstrategy:\n  max_alloc_per_trade: 1.5\n"},
		{"bad confidence floor", "universe: [AAPL]\nrag:\n  enabled: true\n  confidence_floor: 2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.body)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
