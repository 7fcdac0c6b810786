package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

// State is the day-scoped circuit record. DayKey rolling over resets
// everything; within a day Tripped only ever goes false -> true.
type State struct {
	DayKey            string  `json:"day_key"` // UTC calendar date, YYYY-MM-DD
	RealizedPnLToday  float64 `json:"realized_pnl_today"`
	TradeCountToday   int     `json:"trade_count_today"`
	ConsecutiveLosses int     `json:"consecutive_losses"`
	Tripped           bool    `json:"tripped"`
	TripReason        string  `json:"trip_reason,omitempty"`
}

type Limits struct {
	DailyLossLimitPct    float64 // fraction of capital, e.g. 0.03
	Capital              float64
	MaxTradesPerDay      int
	MaxConsecutiveLosses int
}

// CircuitBreaker gates new entries only; exits are always permitted because
// risk reduction must never be blocked.
type CircuitBreaker struct {
	mu             sync.Mutex
	filePath       string
	killSwitchPath string
	limits         Limits
	st             State
}

func NewCircuitBreaker(filePath, killSwitchPath string, limits Limits) *CircuitBreaker {
	return &CircuitBreaker{
		filePath:       filePath,
		killSwitchPath: killSwitchPath,
		limits:         limits,
	}
}

// Load reads persisted circuit state, starting fresh if the file is missing
// or unreadable (a corrupt circuit file is recoverable: the day's counters
// rebuild from subsequent fills, erring on the permissive side is acceptable
// because the ledger and broker still bound exposure).
func (cb *CircuitBreaker) Load(now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	data, err := os.ReadFile(cb.filePath)
	if err == nil {
		if uerr := json.Unmarshal(data, &cb.st); uerr != nil {
			observ.Error("circuit_state_unreadable", uerr, nil)
			cb.st = State{}
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("circuit: read state: %w", err)
	}
	cb.rollDayLocked(now)
	return cb.saveLocked()
}

// Allow reports whether new BUY submissions are permitted right now. The
// kill-switch sentinel is re-checked on every call and forces a trip for the
// rest of the day regardless of counters.
func (cb *CircuitBreaker) Allow(now time.Time) (bool, string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollDayLocked(now)
	wasTripped := cb.st.Tripped
	cb.evaluateLocked()
	if cb.st.Tripped {
		// A kill-switch trip is not derivable from the persisted counters,
		// so it must be saved here or removing the sentinel would un-trip
		// the day on the next run.
		if !wasTripped {
			if err := cb.saveLocked(); err != nil {
				observ.Error("circuit_save_failed", err, nil)
			}
		}
		return false, cb.st.TripReason
	}
	return true, ""
}

// RecordEntry counts one submitted entry order.
func (cb *CircuitBreaker) RecordEntry(now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollDayLocked(now)
	cb.st.TradeCountToday++
	cb.evaluateLocked()
	return cb.saveLocked()
}

// RecordExit folds a realized exit P&L into the day's counters. A losing
// exit extends the consecutive-loss streak; a winning one resets it.
func (cb *CircuitBreaker) RecordExit(pnl float64, now time.Time) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.rollDayLocked(now)
	cb.st.RealizedPnLToday += pnl
	if pnl < 0 {
		cb.st.ConsecutiveLosses++
	} else {
		cb.st.ConsecutiveLosses = 0
	}
	cb.evaluateLocked()
	return cb.saveLocked()
}

// Snapshot returns a copy of the current state for logging and tests.
func (cb *CircuitBreaker) Snapshot() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.st
}

func (cb *CircuitBreaker) Save() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.saveLocked()
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (cb *CircuitBreaker) rollDayLocked(now time.Time) {
	key := dayKey(now)
	if cb.st.DayKey == key {
		return
	}
	if cb.st.DayKey != "" {
		observ.Log("circuit_day_rollover", map[string]any{"from": cb.st.DayKey, "to": key})
	}
	cb.st = State{DayKey: key}
	observ.SetGauge("circuit_breaker_tripped", 0, nil)
}

// evaluateLocked applies the trip conditions. Tripped never clears here;
// only the day rollover resets it.
func (cb *CircuitBreaker) evaluateLocked() {
	if cb.st.Tripped {
		return
	}
	reason := ""
	switch {
	case cb.killSwitchActive():
		reason = "kill_switch"
	case cb.st.RealizedPnLToday <= -(cb.limits.DailyLossLimitPct * cb.limits.Capital):
		reason = "daily_loss_limit"
	case cb.st.TradeCountToday >= cb.limits.MaxTradesPerDay:
		reason = "max_trades_per_day"
	case cb.st.ConsecutiveLosses >= cb.limits.MaxConsecutiveLosses:
		reason = "max_consecutive_losses"
	default:
		return
	}
	cb.st.Tripped = true
	cb.st.TripReason = reason
	observ.Log("circuit_breaker_tripped", map[string]any{
		"reason":             reason,
		"realized_pnl_today": cb.st.RealizedPnLToday,
		"trade_count_today":  cb.st.TradeCountToday,
		"consecutive_losses": cb.st.ConsecutiveLosses,
	})
	observ.IncCounter("circuit_trips_total", map[string]string{"reason": reason})
	observ.SetGauge("circuit_breaker_tripped", 1, nil)
}

// killSwitchActive checks the externally managed sentinel file.
func (cb *CircuitBreaker) killSwitchActive() bool {
	if cb.killSwitchPath == "" {
		return false
	}
	_, err := os.Stat(cb.killSwitchPath)
	return err == nil
}

func (cb *CircuitBreaker) saveLocked() error {
	data, err := json.MarshalIndent(cb.st, "", "  ")
	if err != nil {
		return fmt.Errorf("circuit: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cb.filePath), 0o755); err != nil {
		return fmt.Errorf("circuit: mkdir: %w", err)
	}
	tmp := cb.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("circuit: write temp: %w", err)
	}
	if err := os.Rename(tmp, cb.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("circuit: rename: %w", err)
	}
	return nil
}
