package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Strategy struct {
	BuyThreshold       float64 `yaml:"buy_threshold"`
	SentimentWeight    float64 `yaml:"sentiment_weight"`
	MomentumWeight     float64 `yaml:"momentum_weight"`
	MaxPositions       int     `yaml:"max_positions"`
	MaxAllocPerTrade   float64 `yaml:"max_alloc_per_trade"`  // fraction of capital per entry
	AllowSentimentOnly bool    `yaml:"allow_sentiment_only"` // degrade mode when prices are missing
}

type Risk struct {
	StopLossPct          float64 `yaml:"stop_loss_pct"`
	TakeProfitPct        float64 `yaml:"take_profit_pct"`
	MinHoldHours         int     `yaml:"min_hold_hours"`
	MaxHoldDays          int     `yaml:"max_hold_days"`
	SmallLossThreshold   float64 `yaml:"small_loss_threshold"`
	DailyLossLimitPct    float64 `yaml:"daily_loss_limit_pct"`
	MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
	MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
}

type RAG struct {
	Enabled         bool    `yaml:"enabled"`
	NSimilarResults int     `yaml:"n_similar_results"`
	ConfidenceFloor float64 `yaml:"confidence_floor"`
}

type Hypothesis struct {
	MaxDepth      int     `yaml:"max_depth"`
	BeamWidth     int     `yaml:"beam_width"`
	Epsilon       float64 `yaml:"epsilon"`        // min improvement over parent to expand
	BudgetSeconds int     `yaml:"budget_seconds"` // wall-clock budget for one run
	SnapshotPath  string  `yaml:"snapshot_path"`  // read-only historical signals
	InsightDir    string  `yaml:"insight_dir"`    // dated insight artifacts
}

type Broker struct {
	Endpoint        string `yaml:"endpoint"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	MaxRetries      int    `yaml:"max_retries"`
	BackoffBaseMs   int    `yaml:"backoff_base_ms"`
	BackoffMaxMs    int    `yaml:"backoff_max_ms"`
	RateLimitPerMin int    `yaml:"rate_limit_per_minute"`
}

type Memory struct {
	BaseURL       string `yaml:"base_url"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	MaxRetries    int    `yaml:"max_retries"`
	BackoffBaseMs int    `yaml:"backoff_base_ms"`
}

type Paths struct {
	Ledger     string `yaml:"ledger"`
	Circuit    string `yaml:"circuit"`
	Journal    string `yaml:"journal"`
	KillSwitch string `yaml:"kill_switch"`
}

type Root struct {
	Universe           []string   `yaml:"universe"`
	Capital            float64    `yaml:"capital"`
	Strategy           Strategy   `yaml:"strategy"`
	Risk               Risk       `yaml:"risk"`
	RAG                RAG        `yaml:"rag"`
	Hypothesis         Hypothesis `yaml:"hypothesis"`
	Broker             Broker     `yaml:"broker"`
	Memory             Memory     `yaml:"memory"`
	Paths              Paths      `yaml:"paths"`
	UseWeekendInsights bool       `yaml:"use_weekend_insights"`
}

func Load(path string) (Root, error) {
	var c Root
	b, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if c.Capital == 0 {
		c.Capital = 10000
	}
	if c.Strategy.BuyThreshold == 0 {
		c.Strategy.BuyThreshold = 0.4
	}
	if c.Strategy.SentimentWeight == 0 && c.Strategy.MomentumWeight == 0 {
		c.Strategy.SentimentWeight = 0.5
		c.Strategy.MomentumWeight = 0.5
	}
	if c.Strategy.MaxPositions == 0 {
		c.Strategy.MaxPositions = 5
	}
	if c.Strategy.MaxAllocPerTrade == 0 {
		c.Strategy.MaxAllocPerTrade = 0.1
	}
	if c.Risk.StopLossPct == 0 {
		c.Risk.StopLossPct = 0.04
	}
	if c.Risk.TakeProfitPct == 0 {
		c.Risk.TakeProfitPct = 0.10
	}
	if c.Risk.MinHoldHours == 0 {
		c.Risk.MinHoldHours = 24
	}
	if c.Risk.MaxHoldDays == 0 {
		c.Risk.MaxHoldDays = 7
	}
	if c.Risk.SmallLossThreshold == 0 {
		c.Risk.SmallLossThreshold = 0.01
	}
	if c.Risk.DailyLossLimitPct == 0 {
		c.Risk.DailyLossLimitPct = 0.03
	}
	if c.Risk.MaxTradesPerDay == 0 {
		c.Risk.MaxTradesPerDay = 5
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = 3
	}
	if c.RAG.NSimilarResults == 0 {
		c.RAG.NSimilarResults = 5
	}
	if c.RAG.ConfidenceFloor == 0 {
		c.RAG.ConfidenceFloor = 0.45
	}
	if c.Hypothesis.MaxDepth == 0 {
		c.Hypothesis.MaxDepth = 2
	}
	if c.Hypothesis.BeamWidth == 0 {
		c.Hypothesis.BeamWidth = 3
	}
	if c.Hypothesis.Epsilon == 0 {
		c.Hypothesis.Epsilon = 0.01
	}
	if c.Hypothesis.BudgetSeconds == 0 {
		c.Hypothesis.BudgetSeconds = 900
	}
	if c.Hypothesis.InsightDir == "" {
		c.Hypothesis.InsightDir = "data/insights"
	}
	if c.Broker.TimeoutMs == 0 {
		c.Broker.TimeoutMs = 5000
	}
	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = 3
	}
	if c.Broker.BackoffBaseMs == 0 {
		c.Broker.BackoffBaseMs = 100
	}
	if c.Broker.BackoffMaxMs == 0 {
		c.Broker.BackoffMaxMs = 5000
	}
	if c.Broker.RateLimitPerMin == 0 {
		c.Broker.RateLimitPerMin = 60
	}
	if c.Memory.TimeoutMs == 0 {
		c.Memory.TimeoutMs = 3000
	}
	if c.Memory.MaxRetries == 0 {
		c.Memory.MaxRetries = 2
	}
	if c.Memory.BackoffBaseMs == 0 {
		c.Memory.BackoffBaseMs = 100
	}
	if c.Paths.Ledger == "" {
		c.Paths.Ledger = "data/ledger.json"
	}
	if c.Paths.Circuit == "" {
		c.Paths.Circuit = "data/circuit.json"
	}
	if c.Paths.Journal == "" {
		c.Paths.Journal = "data/journal.jsonl"
	}
	if c.Paths.KillSwitch == "" {
		c.Paths.KillSwitch = "STOP_TRADING"
	}
}

// Validate runs once at startup; a bad config is fatal, not degraded.
func (c Root) Validate() error {
	if len(c.Universe) == 0 {
		return fmt.Errorf("config: universe is empty")
	}
	if c.Capital <= 0 {
		return fmt.Errorf("config: capital must be positive")
	}
	if c.Strategy.SentimentWeight+c.Strategy.MomentumWeight <= 0 {
		return fmt.Errorf("config: sentiment_weight + momentum_weight must be positive")
	}
	if c.Strategy.MaxPositions < 1 {
		return fmt.Errorf("config: max_positions must be >= 1")
	}
	if c.Strategy.MaxAllocPerTrade <= 0 || c.Strategy.MaxAllocPerTrade > 1 {
		return fmt.Errorf("config: max_alloc_per_trade must be in (0,1]")
	}
	if c.Risk.StopLossPct <= 0 || c.Risk.TakeProfitPct <= 0 {
		return fmt.Errorf("config: stop_loss_pct and take_profit_pct must be positive")
	}
	if c.Risk.DailyLossLimitPct <= 0 {
		return fmt.Errorf("config: daily_loss_limit_pct must be positive")
	}
	if c.Risk.MaxTradesPerDay < 1 || c.Risk.MaxConsecutiveLosses < 1 {
		return fmt.Errorf("config: trade and loss limits must be >= 1")
	}
	if c.RAG.Enabled && (c.RAG.NSimilarResults < 1 || c.RAG.ConfidenceFloor < 0 || c.RAG.ConfidenceFloor > 1) {
		return fmt.Errorf("config: rag.n_similar_results must be >= 1 and confidence_floor in [0,1]")
	}
	if c.Hypothesis.MaxDepth < 1 || c.Hypothesis.BeamWidth < 1 {
		return fmt.Errorf("config: hypothesis.max_depth and beam_width must be >= 1")
	}
	return nil
}
