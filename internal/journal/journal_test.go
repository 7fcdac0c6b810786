package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDedupeWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 90*time.Second)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	now := time.Now()
	key := Key("AAPL", "buy")
	if j.SeenRecently(key, now) {
		t.Fatal("fresh journal must not dedupe")
	}
	if err := j.RecordOrder(Order{OrderID: "o1", Ticker: "AAPL", Side: "buy", Notional: 500, SubmittedAt: now, IdempotencyKey: key}); err != nil {
		t.Fatal(err)
	}
	if !j.SeenRecently(key, now.Add(30*time.Second)) {
		t.Fatal("order inside dedupe window must be seen")
	}
	if j.SeenRecently(key, now.Add(5*time.Minute)) {
		t.Fatal("order outside dedupe window must not block")
	}
}

func TestDedupeSpansClockHourBoundary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	j, err := Open(path, 2*time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 8, 21, 14, 59, 0, 0, time.UTC)
	key := Key("AAPL", "buy")
	if err := j.RecordOrder(Order{OrderID: "o1", Ticker: "AAPL", Side: "buy", Notional: 500, SubmittedAt: at, IdempotencyKey: key}); err != nil {
		t.Fatal(err)
	}
	if !j.SeenRecently(key, at.Add(2*time.Minute)) {
		t.Fatal("a rerun minutes later must dedupe across the clock-hour boundary")
	}
	if j.SeenRecently(key, at.Add(3*time.Hour)) {
		t.Fatal("the same intent outside the window may submit again")
	}
}

func TestDedupeSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.jsonl")
	now := time.Now()
	key := Key("NVDA", "sell")

	j, err := Open(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if err := j.RecordOrder(Order{OrderID: "o2", Ticker: "NVDA", Side: "sell", SubmittedAt: now, IdempotencyKey: key}); err != nil {
		t.Fatal(err)
	}
	if err := j.RecordFailure(Failure{Ticker: "TSLA", Side: "sell", Reason: "stop_loss", Error: "timeout", FailedAt: now}); err != nil {
		t.Fatal(err)
	}

	// An overlapping manual run opens its own handle on the same file.
	second, err := Open(path, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if !second.SeenRecently(key, now.Add(time.Minute)) {
		t.Fatal("dedupe index must rebuild from the file on open")
	}
}
