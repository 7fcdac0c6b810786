package hypothesis

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Observation is one historical signal with its realized forward return,
// taken from the read-only snapshot the weekend job replays.
type Observation struct {
	Ticker    string    `json:"ticker"`
	Sentiment float64   `json:"sentiment"`
	Momentum  float64   `json:"momentum"`
	FwdReturn float64   `json:"fwd_return"` // realized over the hold horizon
	At        time.Time `json:"at"`
}

// SnapshotEvaluator replays recorded signals under a candidate parameter
// set. Exits are modeled with the candidate's own stop/take levels: the
// realized return is clipped into [-stop, +take]. Scoring follows the
// long-standing 70/30 split between win rate and normalized P&L.
type SnapshotEvaluator struct {
	Observations []Observation
	NotionalUSD  float64 // per-trade stake before the size multiplier
	PnLNorm      float64 // P&L that counts as a "full" score contribution
}

func NewSnapshotEvaluator(obs []Observation) *SnapshotEvaluator {
	return &SnapshotEvaluator{Observations: obs, NotionalUSD: 100, PnLNorm: 1000}
}

func (e *SnapshotEvaluator) Score(p ParamSet) float64 {
	wins, trades := 0, 0
	totalPnL := 0.0
	focus := map[string]bool{}
	for _, t := range p.FocusTickers {
		focus[t] = true
	}

	for _, obs := range e.Observations {
		if obs.Sentiment < p.SentimentThreshold {
			continue
		}
		if len(focus) > 0 && !focus[obs.Ticker] {
			continue
		}
		trades++
		ret := obs.FwdReturn
		if ret > p.TakeProfitPct {
			ret = p.TakeProfitPct
		}
		if ret < -p.StopLossPct {
			ret = -p.StopLossPct
		}
		pnl := e.NotionalUSD * p.SizeMultiplier * ret
		totalPnL += pnl
		if pnl > 0 {
			wins++
		}
	}
	if trades == 0 {
		return 0
	}
	winRate := float64(wins) / float64(trades)
	pnlScore := totalPnL / e.PnLNorm
	if pnlScore > 1 {
		pnlScore = 1
	}
	if pnlScore < -1 {
		pnlScore = -1
	}
	return winRate*0.7 + pnlScore*0.3
}

// LoadSnapshot reads the historical observation file the exploration job
// replays. The snapshot is immutable input; the job never writes it.
func LoadSnapshot(path string) ([]Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read: %w", err)
	}
	var wrapper struct {
		Observations []Observation `json:"observations"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal: %w", err)
	}
	if len(wrapper.Observations) == 0 {
		return nil, fmt.Errorf("snapshot: no observations in %s", path)
	}
	return wrapper.Observations, nil
}

// BestPerformers ranks tickers by total clipped return in the snapshot and
// returns up to n of them, the candidates for the focus variation.
func BestPerformers(obs []Observation, n int) []string {
	totals := map[string]float64{}
	for _, o := range obs {
		totals[o.Ticker] += o.FwdReturn
	}
	type kv struct {
		ticker string
		total  float64
	}
	ranked := make([]kv, 0, len(totals))
	for t, v := range totals {
		ranked = append(ranked, kv{t, v})
	}
	// insertion sort: the universe is a handful of tickers
	for i := 1; i < len(ranked); i++ {
		for j := i; j > 0; j-- {
			a, b := ranked[j-1], ranked[j]
			if b.total > a.total || (b.total == a.total && b.ticker < a.ticker) {
				ranked[j-1], ranked[j] = b, a
			}
		}
	}
	out := []string{}
	for i := 0; i < len(ranked) && i < n; i++ {
		if ranked[i].total <= 0 {
			break
		}
		out = append(out, ranked[i].ticker)
	}
	return out
}
