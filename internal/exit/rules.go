package exit

import (
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

type Action string

const (
	Sell Action = "SELL"
	Hold Action = "HOLD"
)

// Exit reasons. These strings end up in logs and the journal, so they are
// part of the contract.
const (
	ReasonTakeProfit       = "take_profit"
	ReasonStopLoss         = "stop_loss"
	ReasonTooNew           = "too_new"
	ReasonMaxHoldProfit    = "max_hold_time_profit"
	ReasonMaxHoldSmallLoss = "max_hold_time_small_loss"
	ReasonMaxHoldAwaitStop = "max_hold_await_stop"
	ReasonInRange          = "in_range"
)

type Decision struct {
	Action Action
	Reason string
}

type Params struct {
	TakeProfitPct      float64 // e.g. 0.10
	StopLossPct        float64 // e.g. 0.04 (positive; compared against -pnl)
	MinHoldHours       int
	MaxHoldDays        int
	SmallLossThreshold float64 // e.g. 0.01
}

// Evaluate maps a position's unrealized pnl fraction and hold duration to
// exactly one decision. Capital-protection rules run before the min-hold
// gate: a position younger than min_hold_hours that breaches the stop still
// sells.
func Evaluate(p Params, pnlPct float64, heldFor time.Duration) Decision {
	if pnlPct >= p.TakeProfitPct {
		return Decision{Sell, ReasonTakeProfit}
	}
	if pnlPct <= -p.StopLossPct {
		return Decision{Sell, ReasonStopLoss}
	}
	if heldFor < time.Duration(p.MinHoldHours)*time.Hour {
		return Decision{Hold, ReasonTooNew}
	}
	if heldFor >= time.Duration(p.MaxHoldDays)*24*time.Hour {
		switch {
		case pnlPct > 0:
			return Decision{Sell, ReasonMaxHoldProfit}
		case pnlPct > -p.SmallLossThreshold:
			// small loss: cut it rather than hold stale risk
			return Decision{Sell, ReasonMaxHoldSmallLoss}
		default:
			// deep enough under water that only the stop should close it
			return Decision{Hold, ReasonMaxHoldAwaitStop}
		}
	}
	return Decision{Hold, ReasonInRange}
}

// EvaluateLogged wraps Evaluate with the decision log line and counter the
// cycle loop relies on.
func EvaluateLogged(p Params, ticker string, pnlPct float64, heldFor time.Duration) Decision {
	d := Evaluate(p, pnlPct, heldFor)
	observ.Log("exit_decision", map[string]any{
		"ticker":   ticker,
		"action":   string(d.Action),
		"reason":   d.Reason,
		"pnl_pct":  pnlPct,
		"held_hrs": heldFor.Hours(),
	})
	observ.IncCounter("exit_decisions_total", map[string]string{"action": string(d.Action), "reason": d.Reason})
	return d
}
