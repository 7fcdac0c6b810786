package adapters

import (
	"context"
	"fmt"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/mkarlsen/swingbot/internal/observ"
)

// AlpacaBroker implements Broker against the Alpaca trading API. Credentials
// come from the environment (APCA_API_KEY_ID / APCA_API_SECRET_KEY); paper
// vs live is selected by the configured base URL.
type AlpacaBroker struct {
	client  *alpaca.Client
	limiter *rate.Limiter
	retry   RetryConfig
}

type AlpacaConfig struct {
	BaseURL         string
	RateLimitPerMin int
	Retry           RetryConfig
}

func NewAlpacaBroker(cfg AlpacaConfig) *AlpacaBroker {
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 60
	}
	return &AlpacaBroker{
		client:  alpaca.NewClient(alpaca.ClientOpts{BaseURL: cfg.BaseURL}),
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RateLimitPerMin)/60.0), 1),
		retry:   cfg.Retry,
	}
}

// SubmitOrder places a notional market day order and returns the broker
// order id. Rejections after the retry budget surface as ErrBrokerRejected.
func (b *AlpacaBroker) SubmitOrder(ctx context.Context, ticker string, side Side, notional float64) (string, error) {
	amount := decimal.NewFromFloat(notional)
	var orderID string
	err := WithRetry(ctx, b.retry, "alpaca_submit_order", func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		observ.IncCounter("broker_requests_total", map[string]string{"op": "submit_order"})
		o, err := b.client.PlaceOrder(alpaca.PlaceOrderRequest{
			Symbol:      ticker,
			Notional:    &amount,
			Side:        alpaca.Side(side),
			Type:        alpaca.Market,
			TimeInForce: alpaca.Day,
		})
		if err != nil {
			observ.IncCounter("broker_errors_total", map[string]string{"op": "submit_order"})
			return err
		}
		orderID = o.ID
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %s %s $%.2f: %v", ErrBrokerRejected, side, ticker, notional, err)
	}
	return orderID, nil
}

// OpenPositions returns the broker's authoritative open-position list.
func (b *AlpacaBroker) OpenPositions(ctx context.Context) ([]BrokerPosition, error) {
	var raw []alpaca.Position
	err := WithRetry(ctx, b.retry, "alpaca_open_positions", func(ctx context.Context) error {
		if err := b.limiter.Wait(ctx); err != nil {
			return err
		}
		observ.IncCounter("broker_requests_total", map[string]string{"op": "open_positions"})
		var err error
		raw, err = b.client.GetPositions()
		if err != nil {
			observ.IncCounter("broker_errors_total", map[string]string{"op": "open_positions"})
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("alpaca: get positions: %w", err)
	}

	out := make([]BrokerPosition, 0, len(raw))
	for _, x := range raw {
		// The SDK hands back decimal pointers; absent fields stay zero.
		out = append(out, BrokerPosition{
			Ticker:           x.Symbol,
			Notional:         derefFloat(x.MarketValue),
			EntryPrice:       x.AvgEntryPrice.InexactFloat64(),
			CurrentPrice:     derefFloat(x.CurrentPrice),
			UnrealizedPnLPct: derefFloat(x.UnrealizedPLPC),
			UnrealizedPnL:    derefFloat(x.UnrealizedPL),
		})
	}
	return out, nil
}

func derefFloat(d *decimal.Decimal) float64 {
	if d == nil {
		return 0
	}
	return d.InexactFloat64()
}
