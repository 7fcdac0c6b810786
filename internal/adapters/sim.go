package adapters

import (
	"context"
	"fmt"
	"sync"
)

// SimFeed serves canned per-ticker signals for dry runs and tests.
type SimFeed struct {
	Signals map[string]TickerSignals
}

func (f *SimFeed) FetchSignals(ctx context.Context, ticker string) (TickerSignals, error) {
	s, ok := f.Signals[ticker]
	if !ok {
		return TickerSignals{}, fmt.Errorf("%w: no sim data for %s", ErrDataUnavailable, ticker)
	}
	return s, nil
}

// SimBroker keeps positions in memory and fills every order instantly with
// deterministic IDs, so a dry-run cycle behaves like the real thing minus
// the money.
type SimBroker struct {
	mu        sync.Mutex
	nextID    int
	positions map[string]BrokerPosition
}

func NewSimBroker(initial []BrokerPosition) *SimBroker {
	b := &SimBroker{positions: map[string]BrokerPosition{}}
	for _, p := range initial {
		b.positions[p.Ticker] = p
	}
	return b
}

func (b *SimBroker) SubmitOrder(ctx context.Context, ticker string, side Side, notional float64) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := fmt.Sprintf("sim-%04d", b.nextID)
	switch side {
	case SideBuy:
		b.positions[ticker] = BrokerPosition{Ticker: ticker, Notional: notional}
	case SideSell:
		delete(b.positions, ticker)
	default:
		return "", fmt.Errorf("%w: unknown side %q", ErrBrokerRejected, side)
	}
	return id, nil
}

func (b *SimBroker) OpenPositions(ctx context.Context) ([]BrokerPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BrokerPosition, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	return out, nil
}

// SetPnL lets tests and the dry-run harness steer a position's unrealized
// P&L before the exit engine sees it.
func (b *SimBroker) SetPnL(ticker string, pnlPct, pnlAbs float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.positions[ticker]
	if !ok {
		return
	}
	p.UnrealizedPnLPct = pnlPct
	p.UnrealizedPnL = pnlAbs
	b.positions[ticker] = p
}
