package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mkarlsen/swingbot/internal/observ"
)

type Status string

const (
	Open   Status = "OPEN"
	Closed Status = "CLOSED"
)

// ErrStateCorrupt marks a ledger file that can't be trusted: unreadable JSON
// or internally inconsistent records. The fix is a broker reconcile, not a
// crash.
var ErrStateCorrupt = errors.New("ledger state corrupt")

// Position is the entry metadata for one open holding. EntryTime is set once
// and never changes; status moves OPEN -> CLOSED exactly once.
type Position struct {
	Ticker        string    `json:"ticker"`
	EntryTime     time.Time `json:"entry_time"`
	EntryNotional float64   `json:"entry_notional"`
	EntryPrice    float64   `json:"entry_price,omitempty"`
	OrderID       string    `json:"order_id"`
	Status        Status    `json:"status"`
}

type state struct {
	Version   int64               `json:"version"`
	UpdatedAt string              `json:"updated_at"`
	Positions map[string]Position `json:"positions"` // keyed by ticker, OPEN only
}

// Ledger owns the persistent record of open positions. Every read-modify-write
// goes through the mutex, and saves are temp-file + rename so a crash can't
// leave a half-written file behind.
type Ledger struct {
	mu       sync.Mutex
	filePath string
	st       state
}

func New(filePath string) *Ledger {
	return &Ledger{
		filePath: filePath,
		st:       state{Positions: map[string]Position{}},
	}
}

// Load reads the ledger from disk. A missing file means an empty ledger; an
// unreadable or inconsistent file returns ErrStateCorrupt so the caller can
// reconcile from the broker instead of trusting local state.
func (l *Ledger) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return l.saveLocked()
		}
		return fmt.Errorf("%w: read: %v", ErrStateCorrupt, err)
	}
	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		return fmt.Errorf("%w: unmarshal: %v", ErrStateCorrupt, err)
	}
	if st.Positions == nil {
		st.Positions = map[string]Position{}
	}
	for ticker, pos := range st.Positions {
		if pos.Ticker != ticker || pos.Status != Open || pos.EntryTime.IsZero() {
			return fmt.Errorf("%w: inconsistent record for %s", ErrStateCorrupt, ticker)
		}
	}
	l.st = st
	return nil
}

// OpenPosition records a confirmed entry. A second OPEN position for the same
// ticker violates the one-per-ticker invariant and is rejected.
func (l *Ledger) OpenPosition(p Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.st.Positions[p.Ticker]; exists {
		return fmt.Errorf("ledger: position already open for %s", p.Ticker)
	}
	if p.EntryTime.IsZero() {
		return fmt.Errorf("ledger: entry_time required for %s", p.Ticker)
	}
	p.Status = Open
	l.st.Positions[p.Ticker] = p
	return l.saveLocked()
}

// ClosePosition transitions OPEN -> CLOSED after the broker confirms the
// sell, and drops the record from the open set.
func (l *Ledger) ClosePosition(ticker string) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, exists := l.st.Positions[ticker]
	if !exists {
		return Position{}, fmt.Errorf("ledger: no open position for %s", ticker)
	}
	pos.Status = Closed
	delete(l.st.Positions, ticker)
	if err := l.saveLocked(); err != nil {
		return Position{}, err
	}
	return pos, nil
}

func (l *Ledger) Get(ticker string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.st.Positions[ticker]
	return p, ok
}

func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.st.Positions)
}

// All returns a copy of the open positions.
func (l *Ledger) All() map[string]Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]Position, len(l.st.Positions))
	for k, v := range l.st.Positions {
		out[k] = v
	}
	return out
}

// BrokerPosition is the broker-side view used for reconciliation.
type BrokerPosition struct {
	Ticker     string
	Notional   float64
	EntryPrice float64
}

// Reconcile rebuilds the open set from the broker's authoritative list.
// Entry metadata is kept for tickers both sides agree on; broker-only
// positions get a synthetic entry stamped now (the real entry time is
// unknown once local state is lost); local-only positions are dropped.
func (l *Ledger) Reconcile(brokerPositions []BrokerPosition, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rebuilt := make(map[string]Position, len(brokerPositions))
	for _, bp := range brokerPositions {
		if existing, ok := l.st.Positions[bp.Ticker]; ok && existing.Status == Open && !existing.EntryTime.IsZero() {
			rebuilt[bp.Ticker] = existing
			continue
		}
		rebuilt[bp.Ticker] = Position{
			Ticker:        bp.Ticker,
			EntryTime:     now,
			EntryNotional: bp.Notional,
			EntryPrice:    bp.EntryPrice,
			OrderID:       "reconciled",
			Status:        Open,
		}
		observ.Log("ledger_reconciled_position", map[string]any{"ticker": bp.Ticker, "notional": bp.Notional})
	}
	dropped := 0
	for ticker := range l.st.Positions {
		if _, ok := rebuilt[ticker]; !ok {
			dropped++
			observ.Log("ledger_dropped_stale_position", map[string]any{"ticker": ticker})
		}
	}
	if dropped > 0 {
		observ.IncCounterBy("ledger_stale_positions_total", nil, int64(dropped))
	}
	l.st.Positions = rebuilt
	return l.saveLocked()
}

func (l *Ledger) saveLocked() error {
	l.st.Version++
	l.st.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(l.st, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0o755); err != nil {
		return fmt.Errorf("ledger: mkdir: %w", err)
	}
	tmp := l.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("ledger: write temp: %w", err)
	}
	if err := os.Rename(tmp, l.filePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: rename: %w", err)
	}
	return nil
}
