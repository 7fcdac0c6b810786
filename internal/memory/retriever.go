package memory

import (
	"context"
	"fmt"

	"github.com/mkarlsen/swingbot/internal/observ"
	"github.com/mkarlsen/swingbot/internal/signal"
)

type RetrieverConfig struct {
	Enabled         bool
	NSimilarResults int
	ConfidenceFloor float64 // BUYs below this labeled win fraction are suppressed
	MaxBoost        float64 // cap on the additive composite adjustment
}

// Retriever adjusts live signals using nearest historical analogs. It never
// writes records.
type Retriever struct {
	cfg   RetrieverConfig
	store Store
}

func NewRetriever(cfg RetrieverConfig, store Store) *Retriever {
	if cfg.MaxBoost == 0 {
		cfg.MaxBoost = 0.2
	}
	return &Retriever{cfg: cfg, store: store}
}

// Adjust applies the historical-memory boost and the confidence-floor filter
// to a cycle's signals. Disabled or failing retrieval degrades to
// pass-through: memory can tilt a decision, never break a cycle.
func (r *Retriever) Adjust(ctx context.Context, sigs []signal.Signal) []signal.Signal {
	if !r.cfg.Enabled || r.store == nil {
		return sigs
	}
	out := make([]signal.Signal, len(sigs))
	copy(out, sigs)
	for i := range out {
		r.adjustOne(ctx, &out[i])
	}
	return out
}

func (r *Retriever) adjustOne(ctx context.Context, s *signal.Signal) {
	sketch := Sketch(s.Ticker, s.Sentiment, s.Momentum)
	neighbors, err := r.store.Query(ctx, sketch, r.cfg.NSimilarResults)
	if err != nil {
		observ.Error("memory_query_failed", err, map[string]any{"ticker": s.Ticker})
		observ.IncCounter("memory_query_errors_total", nil)
		return
	}

	winFrac, meanSim, labeled := summarize(neighbors)
	if labeled == 0 {
		return
	}

	boost := Boost(winFrac, meanSim, r.cfg.MaxBoost)
	before := s.Composite
	s.Composite = clamp(s.Composite + boost)

	suppressed := false
	if s.Decision == signal.Buy && winFrac < r.cfg.ConfidenceFloor {
		s.Decision = signal.Skip
		s.Reason = "memory_floor"
		suppressed = true
		observ.IncCounter("signals_suppressed_total", map[string]string{"ticker": s.Ticker})
	}
	observ.Log("memory_adjustment", map[string]any{
		"ticker":       s.Ticker,
		"win_fraction": winFrac,
		"mean_sim":     meanSim,
		"neighbors":    labeled,
		"boost":        boost,
		"composite":    fmt.Sprintf("%.4f->%.4f", before, s.Composite),
		"suppressed":   suppressed,
	})
}

// Boost maps neighbor win fraction and mean similarity to an additive
// composite adjustment in [0, maxBoost]. Non-decreasing in both arguments.
func Boost(winFrac, meanSim, maxBoost float64) float64 {
	if winFrac < 0 {
		winFrac = 0
	}
	if meanSim < 0 {
		meanSim = 0
	}
	if winFrac > 1 {
		winFrac = 1
	}
	if meanSim > 1 {
		meanSim = 1
	}
	return maxBoost * winFrac * meanSim
}

// summarize computes the WIN fraction over labeled neighbors and the mean
// similarity over all of them. UNLABELED records carry no outcome evidence
// and are excluded from the fraction.
func summarize(neighbors []Neighbor) (winFrac, meanSim float64, labeled int) {
	if len(neighbors) == 0 {
		return 0, 0, 0
	}
	wins := 0
	simSum := 0.0
	for _, n := range neighbors {
		simSum += n.Similarity
		switch n.Record.Outcome {
		case Win:
			wins++
			labeled++
		case Loss:
			labeled++
		}
	}
	meanSim = simSum / float64(len(neighbors))
	if labeled > 0 {
		winFrac = float64(wins) / float64(labeled)
	}
	return winFrac, meanSim, labeled
}

// Sketch renders the current conditions for a ticker as the short text the
// vector store embeds and matches against.
func Sketch(ticker string, sentiment, momentum float64) string {
	return fmt.Sprintf("ticker=%s sentiment=%s momentum=%s volatility=%s",
		ticker, sentimentLevel(sentiment), momentumRegime(momentum), volatilityBucket(momentum))
}

func sentimentLevel(s float64) string {
	switch {
	case s >= 0.5:
		return "strong_positive"
	case s >= 0.15:
		return "positive"
	case s > -0.15:
		return "neutral"
	case s > -0.5:
		return "negative"
	default:
		return "strong_negative"
	}
}

func momentumRegime(m float64) string {
	switch {
	case m > 0.01:
		return "rising"
	case m < -0.01:
		return "falling"
	default:
		return "flat"
	}
}

// volatilityBucket uses the magnitude of the lookback move as a coarse
// volatility proxy; the engine has no intraday series at signal time.
func volatilityBucket(m float64) string {
	abs := m
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 0.05:
		return "high"
	case abs >= 0.02:
		return "medium"
	default:
		return "low"
	}
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
