package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/mkarlsen/swingbot/internal/memory"
)

// MemoryStoreClient talks to the external embedding/vector-similarity
// service over HTTP. The provider computes embeddings server-side; this
// client only ships text and reads back neighbors, so providers are
// swappable without touching retriever logic.
type MemoryStoreClient struct {
	baseURL    string
	httpClient *http.Client
	retry      RetryConfig
}

func NewMemoryStoreClient(baseURL string, retry RetryConfig) *MemoryStoreClient {
	return &MemoryStoreClient{
		baseURL:    baseURL,
		httpClient: &http.Client{},
		retry:      retry,
	}
}

var _ memory.Store = (*MemoryStoreClient)(nil)

func (c *MemoryStoreClient) Query(ctx context.Context, text string, n int) ([]memory.Neighbor, error) {
	reqBody, err := json.Marshal(map[string]any{"text": text, "n": n})
	if err != nil {
		return nil, fmt.Errorf("memory store: marshal query: %w", err)
	}

	var neighbors []memory.Neighbor
	err = WithRetry(ctx, c.retry, "memory_query", func(ctx context.Context) error {
		var payload struct {
			Results []struct {
				Record     memory.Record `json:"record"`
				Similarity float64       `json:"similarity"`
			} `json:"results"`
		}
		if err := c.post(ctx, "/query", reqBody, &payload); err != nil {
			return err
		}
		neighbors = neighbors[:0]
		for _, r := range payload.Results {
			neighbors = append(neighbors, memory.Neighbor{Record: r.Record, Similarity: r.Similarity})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: memory query: %v", ErrDataUnavailable, err)
	}
	return neighbors, nil
}

func (c *MemoryStoreClient) Add(ctx context.Context, rec memory.Record) error {
	reqBody, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("memory store: marshal record: %w", err)
	}
	return WithRetry(ctx, c.retry, "memory_add", func(ctx context.Context) error {
		return c.post(ctx, "/records", reqBody, nil)
	})
}

func (c *MemoryStoreClient) post(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
