package hypothesis

import (
	"fmt"
	"sort"
	"strings"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusEvaluated Status = "EVALUATED"
	StatusExpanded  Status = "EXPANDED"
	StatusPruned    Status = "PRUNED"
	StatusSelected  Status = "SELECTED"
)

// ParamSet is one strategy-parameter hypothesis: the knobs the weekend
// search is allowed to vary.
type ParamSet struct {
	SentimentThreshold float64  `json:"sentiment_threshold"`
	StopLossPct        float64  `json:"stop_loss_pct"`
	TakeProfitPct      float64  `json:"take_profit_pct"`
	SizeMultiplier     float64  `json:"size_multiplier"`
	FocusTickers       []string `json:"focus_tickers,omitempty"`
}

// Node lives in the search arena, addressed by ID. A non-root node's parent
// is always EVALUATED or EXPANDED before the child exists.
type Node struct {
	ID       int
	ParentID int // -1 for root
	Delta    string
	Params   ParamSet
	Score    float64
	Depth    int
	Status   Status
}

// variations generates the bounded child set for a parameter set, one small
// delta each, mirroring the exploration menu the strategy has always used.
func variations(p ParamSet, focusCandidates []string) []Node {
	kids := []Node{
		{Delta: "raise_sentiment_threshold", Params: withSentiment(p, p.SentimentThreshold+0.1)},
		{Delta: "lower_sentiment_threshold", Params: withSentiment(p, p.SentimentThreshold-0.1)},
		{Delta: "wider_take_profit", Params: withTakeProfit(p, p.TakeProfitPct*1.3)},
		{Delta: "tighter_stop_loss", Params: withStopLoss(p, p.StopLossPct*0.8)},
		{Delta: "larger_positions", Params: withSize(p, p.SizeMultiplier*1.3)},
		{Delta: "smaller_positions", Params: withSize(p, p.SizeMultiplier*0.7)},
	}
	if len(focusCandidates) > 0 && len(p.FocusTickers) == 0 {
		focused := p
		focused.FocusTickers = append([]string(nil), focusCandidates...)
		sort.Strings(focused.FocusTickers)
		kids = append(kids, Node{Delta: "focus_best_tickers", Params: focused})
	}
	return kids
}

// BranchingFactor is the maximum number of children one node can produce.
const BranchingFactor = 7

func withSentiment(p ParamSet, v float64) ParamSet {
	p.SentimentThreshold = clampRange(v, 0.2, 0.7)
	return p
}

func withTakeProfit(p ParamSet, v float64) ParamSet {
	p.TakeProfitPct = clampRange(v, 0.01, 0.5)
	return p
}

func withStopLoss(p ParamSet, v float64) ParamSet {
	p.StopLossPct = clampRange(v, 0.005, 0.25)
	return p
}

func withSize(p ParamSet, v float64) ParamSet {
	p.SizeMultiplier = clampRange(v, 0.25, 2.0)
	return p
}

// clamped forces every knob back inside the search bounds. Artifacts on disk
// can be hand-edited or written by an older build; a zero size multiplier or
// threshold must never flow into live sizing.
func (p ParamSet) clamped() ParamSet {
	p = withSentiment(p, p.SentimentThreshold)
	p = withTakeProfit(p, p.TakeProfitPct)
	p = withStopLoss(p, p.StopLossPct)
	p = withSize(p, p.SizeMultiplier)
	return p
}

func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (p ParamSet) describe() string {
	s := fmt.Sprintf("sentiment>=%.2f stop=%.1f%% take=%.1f%% size=%.2fx",
		p.SentimentThreshold, p.StopLossPct*100, p.TakeProfitPct*100, p.SizeMultiplier)
	if len(p.FocusTickers) > 0 {
		s += " focus=" + strings.Join(p.FocusTickers, ",")
	}
	return s
}
