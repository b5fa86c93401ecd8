package procutil

import (
	"context"
	"net/http"
	"time"
)

// healthPollInterval is how often WaitForReady re-probes the health URL.
const healthPollInterval = 1 * time.Second

// WaitForReady polls GET {baseURL}/health once per second until it returns
// HTTP 200 or timeout elapses. Connection errors and non-200 responses are
// both treated as "not yet ready" and do not abort the poll early.
func WaitForReady(ctx context.Context, baseURL string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: healthPollInterval}

	for {
		if probeHealth(ctx, client, baseURL) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(healthPollInterval):
		}
	}
}

// probeHealth issues a single GET {baseURL}/health and reports whether it
// returned HTTP 200.
func probeHealth(ctx context.Context, client *http.Client, baseURL string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// CheckHealth issues exactly one GET {baseURL}/health bounded by timeout,
// with no retry. Used by Instance.HealthCheck, which is a point-in-time
// probe rather than the startup poll loop WaitForReady performs.
func CheckHealth(ctx context.Context, baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	client := &http.Client{Timeout: timeout}
	return probeHealth(ctx, client, baseURL)
}
