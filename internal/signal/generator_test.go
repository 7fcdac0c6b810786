package signal

import (
	"testing"
	"time"
)

var testCfg = Config{BuyThreshold: 0.4, SentimentWeight: 0.5, MomentumWeight: 0.5}

func TestCompose_BuyRequiresThresholdAndPositiveMomentum(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		sentiment float64
		momentum  float64
		want      Decision
		reason    string
	}{
		{"strong_both", 0.9, 0.05, Buy, "composite_above_threshold"},
		{"below_threshold", 0.3, 0.02, Skip, "below_threshold"},
		{"negative_momentum", 0.9, -0.01, Skip, "negative_momentum"},
		{"zero_momentum", 0.9, 0.0, Skip, "negative_momentum"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Compose(testCfg, "AAPL", tc.sentiment, tc.momentum, true, now)
			if s.Decision != tc.want {
				t.Fatalf("decision: want %s, got %s", tc.want, s.Decision)
			}
			if s.Reason != tc.reason {
				t.Fatalf("reason: want %s, got %s", tc.reason, s.Reason)
			}
		})
	}
}

func TestCompose_CompositeIsBounded(t *testing.T) {
	s := Compose(Config{BuyThreshold: 0.4, SentimentWeight: 1, MomentumWeight: 1}, "NVDA", 1.0, 3.0, true, time.Now())
	if s.Composite > 1 || s.Composite < -1 {
		t.Fatalf("composite out of bounds: %v", s.Composite)
	}
}

func TestCompose_SentimentOnlyDegrade(t *testing.T) {
	// Momentum missing and sentiment-only disallowed: never a BUY.
	s := Compose(testCfg, "MSFT", 0.9, 0, false, time.Now())
	if s.Decision != Skip || s.Reason != "no_price_data" {
		t.Fatalf("want SKIP no_price_data, got %s %s", s.Decision, s.Reason)
	}

	cfg := testCfg
	cfg.AllowSentimentOnly = true
	s = Compose(cfg, "MSFT", 0.9, 0, false, time.Now())
	if s.Decision != Buy {
		t.Fatalf("sentiment-only mode should BUY on strong sentiment, got %s (%s)", s.Decision, s.Reason)
	}
	if !s.SentimentOnly {
		t.Fatal("signal should be flagged sentiment_only")
	}
}

func TestRank_AdmitsTopCandidatesDeterministically(t *testing.T) {
	now := time.Now()
	sigs := []Signal{
		{Ticker: "MSFT", Composite: 0.6, Decision: Buy, At: now},
		{Ticker: "AAPL", Composite: 0.6, Decision: Buy, At: now},
		{Ticker: "NVDA", Composite: 0.8, Decision: Buy, At: now},
		{Ticker: "TSLA", Composite: 0.2, Decision: Skip, Reason: "below_threshold", At: now},
	}
	out := Rank(sigs, 2)

	if out[0].Ticker != "NVDA" || out[0].Decision != Buy {
		t.Fatalf("want NVDA admitted first, got %s %s", out[0].Ticker, out[0].Decision)
	}
	// Tie at 0.6 resolves lexically: AAPL before MSFT.
	if out[1].Ticker != "AAPL" || out[1].Decision != Buy {
		t.Fatalf("want AAPL second on tie, got %s %s", out[1].Ticker, out[1].Decision)
	}
	if out[2].Ticker != "MSFT" || out[2].Decision != Skip || out[2].Reason != "no_capacity" {
		t.Fatalf("want MSFT demoted no_capacity, got %s %s %s", out[2].Ticker, out[2].Decision, out[2].Reason)
	}
	if out[3].Decision != Skip || out[3].Reason != "below_threshold" {
		t.Fatalf("skip signals must pass through untouched, got %s %s", out[3].Decision, out[3].Reason)
	}
}

func TestRank_NoSlotsDemotesEverything(t *testing.T) {
	sigs := []Signal{{Ticker: "AAPL", Composite: 0.9, Decision: Buy}}
	out := Rank(sigs, 0)
	if out[0].Decision != Skip || out[0].Reason != "no_capacity" {
		t.Fatalf("want demotion with zero slots, got %s %s", out[0].Decision, out[0].Reason)
	}
}
