package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudflare/backoff"
	"github.com/goccy/go-json"
)

// serviceSDLResponse is the response body from a subgraph's GraphQL endpoint
// when queried with `{ _service { sdl } }`.
type serviceSDLResponse struct {
	Data struct {
		Service struct {
			SDL string `json:"sdl"`
		} `json:"_service"`
	} `json:"data"`
}

var serviceSDLQuery = []byte(`{"query":"{_service{sdl}}"}`)

// fetchSDL sends { _service { sdl } } to the subgraph's GraphQL endpoint
// (host). Failed attempts are retried after an exponential backoff starting at
// retry.Interval and capped at retry.Timeout, until retry.Attempts is used up
// or ctx is done.
func fetchSDL(ctx context.Context, host string, httpClient *http.Client, retry RetryOption) (string, error) {
	attempts := max(retry.Attempts, 1)
	timeout := parseDurationOr(retry.Timeout, defaultTimeout)
	b := backoff.NewWithoutJitter(timeout, parseDurationOr(retry.Interval, defaultRetryInterval))

	var lastErr error
	for i := range attempts {
		if i > 0 {
			wait := time.NewTimer(b.Duration())
			select {
			case <-ctx.Done():
				wait.Stop()
				return "", ctx.Err()
			case <-wait.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		sdl, err := doFetchSDL(ctx, host, httpClient, timeout)
		if err == nil {
			return sdl, nil
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to fetch SDL from %s after %d attempt(s): %w", host, attempts, lastErr)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return fallback
}

// doFetchSDL performs a single SDL fetch attempt with the given timeout.
func doFetchSDL(ctx context.Context, host string, httpClient *http.Client, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host, bytes.NewReader(serviceSDLQuery))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, host)
	}

	var svcResp serviceSDLResponse
	if err := json.NewDecoder(resp.Body).Decode(&svcResp); err != nil {
		return "", fmt.Errorf("failed to decode SDL response: %w", err)
	}

	if svcResp.Data.Service.SDL == "" {
		return "", fmt.Errorf("empty SDL returned from %s", host)
	}

	return svcResp.Data.Service.SDL, nil
}
