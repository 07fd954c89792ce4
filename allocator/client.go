package allocator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to a remote allocator service. It satisfies the voter agent's
// ShareAllocator dependency.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the allocator at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Commit requests a unique location share from the remote allocator.
func (c *Client) Commit(ctx context.Context, proposed int) (int, bool, error) {
	body, _ := json.Marshal(&CommitRequest{Proposed: proposed})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/commit", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, false, fmt.Errorf("allocator commit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return 0, false, fmt.Errorf("allocator commit failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var commit CommitResponse
	if err := json.NewDecoder(resp.Body).Decode(&commit); err != nil {
		return 0, false, fmt.Errorf("decoding commit response: %w", err)
	}
	return commit.Assigned, commit.Done, nil
}
