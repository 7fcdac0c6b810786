package memory

import (
	"context"
	"time"
)

type Outcome string

const (
	Win       Outcome = "WIN"
	Loss      Outcome = "LOSS"
	Unlabeled Outcome = "UNLABELED"
)

// Record is one stored market-condition description with a known (or not yet
// known) outcome. Records are append-only: created UNLABELED at weekend
// analysis time, relabeled WIN/LOSS once the trade outcome is in, never
// deleted.
type Record struct {
	Vector     []float64 `json:"embedding,omitempty"` // provider-assigned when empty
	Text       string    `json:"text"`
	Scope      string    `json:"scope"` // ticker or "market"
	ObservedAt time.Time `json:"observed_at"`
	Outcome    Outcome   `json:"outcome"`
}

// Neighbor is one similarity-search hit.
type Neighbor struct {
	Record     Record
	Similarity float64 // [0,1], higher is closer
}

// Store is the narrow contract the external embedding/vector provider sits
// behind. The retriever only reads; Add is used by the weekend analysis job.
type Store interface {
	Query(ctx context.Context, text string, n int) ([]Neighbor, error)
	Add(ctx context.Context, rec Record) error
}
