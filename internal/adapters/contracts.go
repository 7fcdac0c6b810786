package adapters

import (
	"context"
	"errors"
)

// ErrDataUnavailable means a feed could not produce data for a ticker this
// cycle. Non-fatal: the cycle degrades to whatever is still computable.
var ErrDataUnavailable = errors.New("data unavailable")

// ErrBrokerRejected means the broker refused an order after retries.
var ErrBrokerRejected = errors.New("broker rejected order")

// TickerSignals is the raw per-ticker input to signal generation.
// HasMomentum=false marks the sentiment-only degrade path (price feed down
// but sentiment still flowing).
type TickerSignals struct {
	Sentiment   float64
	Momentum    float64
	HasMomentum bool
}

// SignalFeed supplies per-ticker sentiment and momentum aggregates. The
// fetcher internals (news, social, price sources) live outside this repo.
type SignalFeed interface {
	FetchSignals(ctx context.Context, ticker string) (TickerSignals, error)
}

// BrokerPosition is the broker-side truth about one open holding, used both
// for exit evaluation and ledger reconciliation.
type BrokerPosition struct {
	Ticker           string
	Notional         float64
	EntryPrice       float64
	CurrentPrice     float64
	UnrealizedPnLPct float64 // fraction, e.g. 0.035
	UnrealizedPnL    float64 // absolute
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Broker is the order-submission collaborator.
type Broker interface {
	SubmitOrder(ctx context.Context, ticker string, side Side, notional float64) (orderID string, err error)
	OpenPositions(ctx context.Context) ([]BrokerPosition, error)
}
