package registry

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"ghostshell/internal/domain"
	"ghostshell/internal/logging"
)

// Checker probes the service registry and remembers the last result.
type Checker struct {
	url  string
	http *http.Client

	mu   sync.Mutex
	last domain.NetworkStatus
}

func NewChecker(url string, httpClient *http.Client) *Checker {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Checker{url: url, http: httpClient}
}

// Check reports ONLINE for a 2xx answer and OFFLINE otherwise. Only changes
// are logged.
func (c *Checker) Check(ctx context.Context) domain.NetworkStatus {
	status := c.probe(ctx)

	c.mu.Lock()
	changed := status != c.last
	c.last = status
	c.mu.Unlock()

	if changed {
		if status == domain.NetworkOnline {
			slog.Log(ctx, logging.LevelSuccess, "Network status changed", "status", status)
		} else {
			slog.Error("Network status changed", "status", status, "registry", c.url)
		}
	}
	return status
}

// Last returns the most recent result, empty before the first check.
func (c *Checker) Last() domain.NetworkStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func (c *Checker) probe(ctx context.Context) domain.NetworkStatus {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.NetworkOffline
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Debug("Registry probe failed", "err", err)
		return domain.NetworkOffline
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return domain.NetworkOnline
	}
	return domain.NetworkOffline
}
