package adapters

import (
	"encoding/json"
	"fmt"
	"os"
)

type signalsFile struct {
	Signals map[string]struct {
		Sentiment   float64 `json:"sentiment"`
		Momentum    float64 `json:"momentum"`
		HasMomentum bool    `json:"has_momentum"`
	} `json:"signals"`
}

// LoadSignalsFile builds a feed from a JSON fixture produced by the upstream
// data pipeline. One file per cycle; stale files are the pipeline's problem.
func LoadSignalsFile(path string) (*SimFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signals file: read: %w", err)
	}
	var sf signalsFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("signals file: parse: %w", err)
	}
	feed := &SimFeed{Signals: make(map[string]TickerSignals, len(sf.Signals))}
	for ticker, s := range sf.Signals {
		feed.Signals[ticker] = TickerSignals{Sentiment: s.Sentiment, Momentum: s.Momentum, HasMomentum: s.HasMomentum}
	}
	return feed, nil
}
