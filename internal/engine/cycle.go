package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mkarlsen/swingbot/internal/adapters"
	"github.com/mkarlsen/swingbot/internal/config"
	"github.com/mkarlsen/swingbot/internal/exit"
	"github.com/mkarlsen/swingbot/internal/hypothesis"
	"github.com/mkarlsen/swingbot/internal/journal"
	"github.com/mkarlsen/swingbot/internal/ledger"
	"github.com/mkarlsen/swingbot/internal/memory"
	"github.com/mkarlsen/swingbot/internal/observ"
	"github.com/mkarlsen/swingbot/internal/risk"
	"github.com/mkarlsen/swingbot/internal/signal"
)

// Deps wires one cycle's collaborators. Everything is injected so tests can
// run a full cycle against the sim adapters.
type Deps struct {
	Cfg     config.Root
	Feed    adapters.SignalFeed
	Broker  adapters.Broker
	Ledger  *ledger.Ledger
	Circuit *risk.CircuitBreaker
	Journal *journal.Journal
	Memory  *memory.Retriever
	Now     func() time.Time
	DryRun  bool
}

type ExitResult struct {
	Ticker string
	Reason string
	PnL    float64
	Sold   bool
}

type EntryResult struct {
	Ticker    string
	Notional  float64
	OrderID   string
	Submitted bool
	Reason    string
}

// Report summarizes what one cycle did; it feeds logs, not decisions.
type Report struct {
	Exits          []ExitResult
	Entries        []EntryResult
	Signals        []signal.Signal
	Degraded       bool
	CircuitBlocked string
	InsightApplied bool
}

// DedupeWindow bounds how long a journaled order suppresses an identical
// resubmission. Two hours covers an overlapping manual rerun of the cycle.
const DedupeWindow = 2 * time.Hour

// RunCycle executes one full decision pass: reconcile state from the broker,
// evaluate exits for every open position, then score the universe and submit
// new entries through the circuit breaker. Individual failures degrade the
// cycle; they never abort it.
func RunCycle(ctx context.Context, d Deps) Report {
	now := d.Now()
	var rep Report
	observ.IncCounter("cycles_total", nil)
	defer func() {
		if rep.Degraded {
			observ.IncCounter("cycles_degraded_total", nil)
		}
	}()

	strat, risks, sizeMult, focus := effectiveParams(d.Cfg, &rep)

	if err := d.Ledger.Load(); err != nil {
		if !errors.Is(err, ledger.ErrStateCorrupt) {
			observ.Error("ledger_load_failed", err, nil)
			rep.Degraded = true
			return rep
		}
		// Corrupt local state: the broker list below is the recovery path.
		observ.Error("ledger_corrupt_rebuilding", err, nil)
		rep.Degraded = true
	}

	brokerPositions, err := d.Broker.OpenPositions(ctx)
	if err != nil {
		// Without broker truth neither exits nor safe entries are possible.
		observ.Error("broker_positions_unavailable", err, nil)
		rep.Degraded = true
		return rep
	}

	lps := make([]ledger.BrokerPosition, 0, len(brokerPositions))
	byTicker := make(map[string]adapters.BrokerPosition, len(brokerPositions))
	for _, bp := range brokerPositions {
		lps = append(lps, ledger.BrokerPosition{Ticker: bp.Ticker, Notional: bp.Notional, EntryPrice: bp.EntryPrice})
		byTicker[bp.Ticker] = bp
	}
	if err := d.Ledger.Reconcile(lps, now); err != nil {
		observ.Error("ledger_reconcile_failed", err, nil)
		rep.Degraded = true
		return rep
	}

	rep.Exits = runExits(ctx, d, risks, byTicker, now)

	rep.Signals, rep.Degraded = scoreUniverse(ctx, d, strat, focus, now, rep.Degraded)
	// Memory runs before ranking: a suppressed BUY must not consume an
	// admission slot, and a boosted composite competes for one.
	if d.Memory != nil {
		rep.Signals = d.Memory.Adjust(ctx, rep.Signals)
	}
	freeSlots := d.Cfg.Strategy.MaxPositions - d.Ledger.OpenCount()
	rep.Signals = signal.Rank(rep.Signals, freeSlots)

	if ok, reason := d.Circuit.Allow(now); !ok {
		rep.CircuitBlocked = reason
		observ.Log("entries_blocked", map[string]any{"reason": reason})
		return rep
	}

	rep.Entries = runEntries(ctx, d, sizeMult, rep.Signals, now)

	observ.SetGauge("open_positions", float64(d.Ledger.OpenCount()), nil)
	return rep
}

// effectiveParams folds the latest weekend insight (if enabled and present)
// into the configured strategy and exit parameters. A non-empty focus set
// restricts which universe tickers are scored for entry this cycle.
func effectiveParams(cfg config.Root, rep *Report) (signal.Config, exit.Params, float64, map[string]bool) {
	strat := signal.Config{
		BuyThreshold:       cfg.Strategy.BuyThreshold,
		SentimentWeight:    cfg.Strategy.SentimentWeight,
		MomentumWeight:     cfg.Strategy.MomentumWeight,
		AllowSentimentOnly: cfg.Strategy.AllowSentimentOnly,
	}
	risks := exit.Params{
		TakeProfitPct:      cfg.Risk.TakeProfitPct,
		StopLossPct:        cfg.Risk.StopLossPct,
		MinHoldHours:       cfg.Risk.MinHoldHours,
		MaxHoldDays:        cfg.Risk.MaxHoldDays,
		SmallLossThreshold: cfg.Risk.SmallLossThreshold,
	}
	sizeMult := 1.0

	if !cfg.UseWeekendInsights {
		return strat, risks, sizeMult, nil
	}
	ins, ok, err := hypothesis.LoadLatest(cfg.Hypothesis.InsightDir)
	if err != nil {
		observ.Error("insight_load_failed", err, nil)
		return strat, risks, sizeMult, nil
	}
	if !ok {
		return strat, risks, sizeMult, nil
	}
	strat.BuyThreshold = ins.SelectedParams.SentimentThreshold
	risks.StopLossPct = ins.SelectedParams.StopLossPct
	risks.TakeProfitPct = ins.SelectedParams.TakeProfitPct
	sizeMult = ins.SelectedParams.SizeMultiplier
	var focus map[string]bool
	if len(ins.SelectedParams.FocusTickers) > 0 {
		focus = make(map[string]bool, len(ins.SelectedParams.FocusTickers))
		for _, t := range ins.SelectedParams.FocusTickers {
			focus[t] = true
		}
	}
	rep.InsightApplied = true
	observ.Log("insight_applied", map[string]any{
		"buy_threshold": strat.BuyThreshold,
		"stop_loss":     risks.StopLossPct,
		"take_profit":   risks.TakeProfitPct,
		"size_mult":     sizeMult,
		"focus":         ins.SelectedParams.FocusTickers,
	})
	return strat, risks, sizeMult, focus
}

// runExits evaluates every tracked position against the exit rules and
// submits sells. A failed sell is journaled and the position stays open for
// the next cycle; exits are never gated by the circuit breaker.
func runExits(ctx context.Context, d Deps, risks exit.Params, byTicker map[string]adapters.BrokerPosition, now time.Time) []ExitResult {
	var results []ExitResult
	for ticker, pos := range d.Ledger.All() {
		bp, ok := byTicker[ticker]
		if !ok {
			// Reconcile just ran, so this shouldn't happen; skip defensively.
			continue
		}
		dec := exit.EvaluateLogged(risks, ticker, bp.UnrealizedPnLPct, now.Sub(pos.EntryTime))
		if dec.Action != exit.Sell {
			results = append(results, ExitResult{Ticker: ticker, Reason: dec.Reason})
			continue
		}

		key := journal.Key(ticker, string(adapters.SideSell))
		if d.Journal.SeenRecently(key, now) {
			observ.Log("order_deduped", map[string]any{"ticker": ticker, "side": "sell"})
			continue
		}
		if d.DryRun {
			observ.Log("dry_run_sell", map[string]any{"ticker": ticker, "reason": dec.Reason})
			results = append(results, ExitResult{Ticker: ticker, Reason: dec.Reason, PnL: bp.UnrealizedPnL})
			continue
		}

		orderID, err := d.Broker.SubmitOrder(ctx, ticker, adapters.SideSell, bp.Notional)
		if err != nil {
			observ.Error("sell_failed", err, map[string]any{"ticker": ticker})
			if jerr := d.Journal.RecordFailure(journal.Failure{
				Ticker: ticker, Side: string(adapters.SideSell), Reason: dec.Reason,
				Error: err.Error(), FailedAt: now,
			}); jerr != nil {
				observ.Error("journal_write_failed", jerr, nil)
			}
			results = append(results, ExitResult{Ticker: ticker, Reason: dec.Reason})
			continue
		}

		if err := d.Journal.RecordOrder(journal.Order{
			OrderID: orderID, Ticker: ticker, Side: string(adapters.SideSell),
			Notional: bp.Notional, Reason: dec.Reason, SubmittedAt: now, IdempotencyKey: key,
		}); err != nil {
			observ.Error("journal_write_failed", err, nil)
		}
		if _, err := d.Ledger.ClosePosition(ticker); err != nil {
			observ.Error("ledger_close_failed", err, map[string]any{"ticker": ticker})
		}
		if err := d.Circuit.RecordExit(bp.UnrealizedPnL, now); err != nil {
			observ.Error("circuit_save_failed", err, nil)
		}
		observ.IncCounter("exits_total", map[string]string{"reason": dec.Reason})
		results = append(results, ExitResult{Ticker: ticker, Reason: dec.Reason, PnL: bp.UnrealizedPnL, Sold: true})
	}
	return results
}

// scoreUniverse fetches per-ticker inputs and composes signals. A feed miss
// degrades the cycle but only skips that ticker. Tickers outside a non-nil
// focus set are not scored; exits for them still run normally.
func scoreUniverse(ctx context.Context, d Deps, strat signal.Config, focus map[string]bool, now time.Time, degraded bool) ([]signal.Signal, bool) {
	sigs := make([]signal.Signal, 0, len(d.Cfg.Universe))
	for _, ticker := range d.Cfg.Universe {
		if focus != nil && !focus[ticker] {
			continue
		}
		if _, open := d.Ledger.Get(ticker); open {
			continue
		}
		ts, err := d.Feed.FetchSignals(ctx, ticker)
		if err != nil {
			observ.Error("signal_fetch_failed", err, map[string]any{"ticker": ticker})
			observ.IncCounter("signal_fetch_errors_total", map[string]string{"ticker": ticker})
			degraded = true
			continue
		}
		sigs = append(sigs, signal.Compose(strat, ticker, ts.Sentiment, ts.Momentum, ts.HasMomentum, now))
	}
	return sigs, degraded
}

// runEntries submits BUY orders for ranked signals, re-checking the circuit
// between fills because a submission can itself trip the trade-count limit.
func runEntries(ctx context.Context, d Deps, sizeMult float64, sigs []signal.Signal, now time.Time) []EntryResult {
	var results []EntryResult
	notional := d.Cfg.Capital * d.Cfg.Strategy.MaxAllocPerTrade * sizeMult

	for _, s := range sigs {
		if s.Decision != signal.Buy {
			continue
		}
		if ok, reason := d.Circuit.Allow(now); !ok {
			observ.Log("entries_blocked", map[string]any{"reason": reason})
			break
		}
		key := journal.Key(s.Ticker, string(adapters.SideBuy))
		if d.Journal.SeenRecently(key, now) {
			observ.Log("order_deduped", map[string]any{"ticker": s.Ticker, "side": "buy"})
			results = append(results, EntryResult{Ticker: s.Ticker, Reason: "deduped"})
			continue
		}
		if d.DryRun {
			observ.Log("dry_run_buy", map[string]any{"ticker": s.Ticker, "notional": notional})
			results = append(results, EntryResult{Ticker: s.Ticker, Notional: notional, Reason: "dry_run"})
			continue
		}

		orderID, err := d.Broker.SubmitOrder(ctx, s.Ticker, adapters.SideBuy, notional)
		if err != nil {
			observ.Error("buy_failed", err, map[string]any{"ticker": s.Ticker})
			if jerr := d.Journal.RecordFailure(journal.Failure{
				Ticker: s.Ticker, Side: string(adapters.SideBuy), Reason: s.Reason,
				Error: err.Error(), FailedAt: now,
			}); jerr != nil {
				observ.Error("journal_write_failed", jerr, nil)
			}
			results = append(results, EntryResult{Ticker: s.Ticker, Reason: "broker_rejected"})
			continue
		}

		if err := d.Journal.RecordOrder(journal.Order{
			OrderID: orderID, Ticker: s.Ticker, Side: string(adapters.SideBuy),
			Notional: notional, Reason: s.Reason, SubmittedAt: now, IdempotencyKey: key,
		}); err != nil {
			observ.Error("journal_write_failed", err, nil)
		}
		if err := d.Ledger.OpenPosition(ledger.Position{
			Ticker: s.Ticker, EntryTime: now, EntryNotional: notional, OrderID: orderID,
		}); err != nil {
			observ.Error("ledger_open_failed", err, map[string]any{"ticker": s.Ticker})
		}
		if err := d.Circuit.RecordEntry(now); err != nil {
			observ.Error("circuit_save_failed", err, nil)
		}
		observ.IncCounter("entries_total", nil)
		results = append(results, EntryResult{
			Ticker: s.Ticker, Notional: notional, OrderID: orderID, Submitted: true, Reason: s.Reason,
		})
	}
	return results
}

// Summary renders a one-line human log of the cycle outcome.
func (r Report) Summary() string {
	sold, bought := 0, 0
	for _, e := range r.Exits {
		if e.Sold {
			sold++
		}
	}
	for _, e := range r.Entries {
		if e.Submitted {
			bought++
		}
	}
	s := fmt.Sprintf("exits=%d entries=%d signals=%d", sold, bought, len(r.Signals))
	if r.CircuitBlocked != "" {
		s += " circuit=" + r.CircuitBlocked
	}
	if r.Degraded {
		s += " degraded"
	}
	return s
}
