package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/ivlev/script2video/internal/retry"
)

// client is the shared HTTP plumbing for the hosted backends: one rate
// limiter per service and a uniform transient/permanent split on status
// codes.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
	apiKey  string
	baseURL string
}

func newClient(baseURL, apiKey string, rps float64) *client {
	if rps <= 0 {
		rps = 1
	}
	return &client{
		http:    &http.Client{Timeout: 120 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// postJSON sends a JSON body and returns the raw response body. Rate
// limit and server-side failures come back transient so the retry policy
// takes another pass; client errors are permanent.
func (c *client) postJSON(ctx context.Context, path string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, retry.Transientf("%s: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, retry.Transientf("%s: reading response: %v", path, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, retry.Transientf("%s: status %d: %s", path, resp.StatusCode, truncate(data, 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
