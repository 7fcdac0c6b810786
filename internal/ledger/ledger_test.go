package ledger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "ledger.json"))
}

func TestLoad_MissingFileIsEmptyLedger(t *testing.T) {
	l := newTestLedger(t)
	if err := l.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if l.OpenCount() != 0 {
		t.Fatalf("want empty ledger, got %d positions", l.OpenCount())
	}
}

func TestOpenPosition_OnePerTicker(t *testing.T) {
	l := newTestLedger(t)
	entry := Position{Ticker: "AAPL", EntryTime: time.Now(), EntryNotional: 500, OrderID: "o1"}
	if err := l.OpenPosition(entry); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.OpenPosition(entry); err == nil {
		t.Fatal("second OPEN for same ticker must be rejected")
	}
}

func TestClosePosition_RemovesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	l := New(path)
	entered := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	if err := l.OpenPosition(Position{Ticker: "NVDA", EntryTime: entered, EntryNotional: 300, OrderID: "o2"}); err != nil {
		t.Fatalf("open: %v", err)
	}

	closed, err := l.ClosePosition("NVDA")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.Status != Closed || !closed.EntryTime.Equal(entered) {
		t.Fatalf("close returned wrong record: %+v", closed)
	}
	if _, err := l.ClosePosition("NVDA"); err == nil {
		t.Fatal("double close must fail")
	}

	// Reload from disk; the position must be gone.
	fresh := New(path)
	if err := fresh.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if fresh.OpenCount() != 0 {
		t.Fatalf("closed position survived reload: %v", fresh.All())
	}
}

func TestLoad_CorruptFileReturnsErrStateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if err := l.Load(); !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("want ErrStateCorrupt, got %v", err)
	}
}

func TestLoad_InconsistentRecordReturnsErrStateCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	// Record keyed AAPL but claiming to be MSFT.
	body := `{"version":1,"positions":{"AAPL":{"ticker":"MSFT","entry_time":"2026-01-05T10:00:00Z","status":"OPEN"}}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	l := New(path)
	if err := l.Load(); !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("want ErrStateCorrupt, got %v", err)
	}
}

func TestReconcile_RebuildsFromBrokerTruth(t *testing.T) {
	l := newTestLedger(t)
	entered := time.Now().Add(-72 * time.Hour)
	if err := l.OpenPosition(Position{Ticker: "AAPL", EntryTime: entered, EntryNotional: 500, OrderID: "o1"}); err != nil {
		t.Fatal(err)
	}
	if err := l.OpenPosition(Position{Ticker: "TSLA", EntryTime: entered, EntryNotional: 400, OrderID: "o3"}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	broker := []BrokerPosition{
		{Ticker: "AAPL", Notional: 510, EntryPrice: 182.5}, // agrees with local
		{Ticker: "GOOGL", Notional: 250, EntryPrice: 140},  // broker-only
	}
	if err := l.Reconcile(broker, now); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	if l.OpenCount() != 2 {
		t.Fatalf("want 2 positions after reconcile, got %d", l.OpenCount())
	}
	aapl, _ := l.Get("AAPL")
	if !aapl.EntryTime.Equal(entered) {
		t.Fatal("reconcile must keep entry metadata where both sides agree")
	}
	googl, ok := l.Get("GOOGL")
	if !ok || googl.OrderID != "reconciled" || !googl.EntryTime.Equal(now) {
		t.Fatalf("broker-only position not rebuilt: %+v", googl)
	}
	if _, ok := l.Get("TSLA"); ok {
		t.Fatal("local-only position must be dropped")
	}
}
