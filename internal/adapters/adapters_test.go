package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/swingbot/internal/memory"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		Timeout:     time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		BackoffMax:  5 * time.Millisecond,
	}
}

func TestWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(3), "test_op", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestWithRetry_ReturnsLastErrorWhenExhausted(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastRetry(2), "test_op", func(ctx context.Context) error {
		calls++
		return errors.New("still down")
	})
	require.Error(t, err)
	assert.EqualError(t, err, "still down")
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := WithRetry(ctx, fastRetry(5), "test_op", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("fail then cancel")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSimBroker_BuyThenSellRoundTrip(t *testing.T) {
	b := NewSimBroker(nil)
	ctx := context.Background()

	id, err := b.SubmitOrder(ctx, "AAPL", SideBuy, 1000)
	require.NoError(t, err)
	assert.Equal(t, "sim-0001", id)

	positions, err := b.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "AAPL", positions[0].Ticker)

	_, err = b.SubmitOrder(ctx, "AAPL", SideSell, 1000)
	require.NoError(t, err)

	positions, err = b.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestSimFeed_MissingTickerIsDataUnavailable(t *testing.T) {
	f := &SimFeed{Signals: map[string]TickerSignals{}}
	_, err := f.FetchSignals(context.Background(), "AAPL")
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestLoadSignalsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.json")
	payload := `{"signals":{"AAPL":{"sentiment":0.6,"momentum":0.2,"has_momentum":true},"TSLA":{"sentiment":0.5,"has_momentum":false}}}`
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	feed, err := LoadSignalsFile(path)
	require.NoError(t, err)

	aapl, err := feed.FetchSignals(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, TickerSignals{Sentiment: 0.6, Momentum: 0.2, HasMomentum: true}, aapl)

	tsla, err := feed.FetchSignals(context.Background(), "TSLA")
	require.NoError(t, err)
	assert.False(t, tsla.HasMomentum)
}

func TestLoadSignalsFile_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signals.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	_, err := LoadSignalsFile(path)
	require.Error(t, err)
}

func TestMemoryStoreClient_QueryMapsNeighbors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/query", r.URL.Path)
		var req struct {
			Text string `json:"text"`
			N    int    `json:"n"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.N)
		json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"record": map[string]any{"text": req.Text, "outcome": "WIN"}, "similarity": 0.91},
				{"record": map[string]any{"text": "other", "outcome": "LOSS"}, "similarity": 0.72},
			},
		})
	}))
	defer srv.Close()

	c := NewMemoryStoreClient(srv.URL, fastRetry(1))
	neighbors, err := c.Query(context.Background(), "ticker=AAPL sentiment=strong", 5)
	require.NoError(t, err)
	require.Len(t, neighbors, 2)
	assert.Equal(t, memory.Win, neighbors[0].Record.Outcome)
	assert.Equal(t, 0.91, neighbors[0].Similarity)
}

func TestMemoryStoreClient_ServerErrorWrapsDataUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewMemoryStoreClient(srv.URL, fastRetry(1))
	_, err := c.Query(context.Background(), "anything", 3)
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestMemoryStoreClient_AddPostsRecord(t *testing.T) {
	var got memory.Record
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/records", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewMemoryStoreClient(srv.URL, fastRetry(1))
	rec := memory.Record{Text: "weekend insight", Scope: "insight", Outcome: memory.Unlabeled, ObservedAt: time.Now().UTC()}
	require.NoError(t, c.Add(context.Background(), rec))
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, memory.Unlabeled, got.Outcome)
}
