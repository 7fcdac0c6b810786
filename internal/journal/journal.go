package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Order is one submitted broker order as the engine saw it.
type Order struct {
	OrderID        string    `json:"order_id"`
	Ticker         string    `json:"ticker"`
	Side           string    `json:"side"` // "buy" | "sell"
	Notional       float64   `json:"notional"`
	Reason         string    `json:"reason"`
	SubmittedAt    time.Time `json:"submitted_at"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Failure records an order the broker refused after retries; the position
// stays tracked and the next cycle tries again.
type Failure struct {
	Ticker   string    `json:"ticker"`
	Side     string    `json:"side"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type entry struct {
	Type string          `json:"type"` // "order" | "failure"
	Data json.RawMessage `json:"data"`
	At   time.Time       `json:"at"`
	Key  string          `json:"key,omitempty"`
}

// Journal is an append-only JSONL record of everything the engine asked the
// broker to do. The dedupe window stops an overlapping manual run from
// double-submitting the same order.
type Journal struct {
	mu           sync.Mutex
	path         string
	dedupeWindow time.Duration
	recent       map[string]time.Time // idempotency key -> submitted at
}

func Open(path string, dedupeWindow time.Duration) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: mkdir: %w", err)
	}
	j := &Journal{path: path, dedupeWindow: dedupeWindow, recent: map[string]time.Time{}}
	if err := j.loadRecent(); err != nil {
		return nil, err
	}
	return j, nil
}

// Key builds the idempotency key for an order intent. The key is stable for
// a ticker/side pair; SeenRecently bounds how long it suppresses an
// equivalent resubmission.
func Key(ticker, side string) string {
	return fmt.Sprintf("%s|%s", ticker, side)
}

// SeenRecently reports whether an equivalent order was journaled inside the
// dedupe window.
func (j *Journal) SeenRecently(key string, now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	at, ok := j.recent[key]
	return ok && now.Sub(at) < j.dedupeWindow
}

func (j *Journal) RecordOrder(o Order) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("journal: marshal order: %w", err)
	}
	if err := j.appendLocked(entry{Type: "order", Data: data, At: o.SubmittedAt, Key: o.IdempotencyKey}); err != nil {
		return err
	}
	if o.IdempotencyKey != "" {
		j.recent[o.IdempotencyKey] = o.SubmittedAt
	}
	return nil
}

func (j *Journal) RecordFailure(f Failure) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("journal: marshal failure: %w", err)
	}
	return j.appendLocked(entry{Type: "failure", Data: data, At: f.FailedAt})
}

func (j *Journal) appendLocked(e entry) error {
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: open: %w", err)
	}
	defer f.Close()
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("journal: marshal entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	return nil
}

// loadRecent rebuilds the dedupe index from the existing file. Unparseable
// lines are skipped: the journal is an audit trail, not a source of truth.
func (j *Journal) loadRecent() error {
	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("journal: open for scan: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		if e.Type == "order" && e.Key != "" {
			j.recent[e.Key] = e.At
		}
	}
	return sc.Err()
}
