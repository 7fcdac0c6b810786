package signal

import (
	"sort"
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

type Decision string

const (
	Buy  Decision = "BUY"
	Skip Decision = "SKIP"
)

// Signal is one per-ticker scoring outcome for a cycle. Composite stays in
// [-1,1]; the weights are configuration, never derived.
type Signal struct {
	Ticker        string    `json:"ticker"`
	Sentiment     float64   `json:"sentiment_score"` // [-1,1]
	Momentum      float64   `json:"momentum_score"`  // fractional price change
	Composite     float64   `json:"composite_score"`
	Decision      Decision  `json:"decision"`
	Reason        string    `json:"reason"`
	SentimentOnly bool      `json:"sentiment_only,omitempty"`
	At            time.Time `json:"timestamp"`
}

type Config struct {
	BuyThreshold       float64
	SentimentWeight    float64
	MomentumWeight     float64
	AllowSentimentOnly bool
}

// Compose scores one ticker. hasMomentum=false is the degraded path when
// price data is unavailable: the momentum term drops out and a BUY is only
// possible when sentiment-only trading is allowed.
func Compose(cfg Config, ticker string, sentiment, momentum float64, hasMomentum bool, now time.Time) Signal {
	s := Signal{
		Ticker:    ticker,
		Sentiment: clamp(sentiment),
		Momentum:  momentum,
		At:        now,
	}
	if !hasMomentum {
		s.Momentum = 0
		s.SentimentOnly = true
	}
	s.Composite = clamp(cfg.SentimentWeight*s.Sentiment + cfg.MomentumWeight*s.Momentum)

	switch {
	case s.Composite < cfg.BuyThreshold:
		s.Decision, s.Reason = Skip, "below_threshold"
	case !hasMomentum && !cfg.AllowSentimentOnly:
		s.Decision, s.Reason = Skip, "no_price_data"
	case hasMomentum && s.Momentum <= 0:
		s.Decision, s.Reason = Skip, "negative_momentum"
	default:
		s.Decision, s.Reason = Buy, "composite_above_threshold"
	}
	return s
}

// Rank orders BUY candidates by composite score descending, ties broken by
// ticker so a cycle is reproducible, and admits at most freeSlots of them.
// Demoted candidates keep their scores but become SKIP "no_capacity".
// SKIP signals pass through untouched.
func Rank(signals []Signal, freeSlots int) []Signal {
	out := make([]Signal, len(signals))
	copy(out, signals)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Decision != out[j].Decision {
			return out[i].Decision == Buy
		}
		if out[i].Composite != out[j].Composite {
			return out[i].Composite > out[j].Composite
		}
		return out[i].Ticker < out[j].Ticker
	})

	admitted := 0
	for i := range out {
		if out[i].Decision != Buy {
			continue
		}
		if admitted < freeSlots {
			admitted++
			continue
		}
		out[i].Decision = Skip
		out[i].Reason = "no_capacity"
		observ.IncCounter("signals_demoted_total", map[string]string{"ticker": out[i].Ticker})
	}
	return out
}

func clamp(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}
