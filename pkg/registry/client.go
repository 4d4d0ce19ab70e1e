package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devports/kdcdash/pkg/models"
)

// Client reads port allocations from the port registry service
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a registry client rooted at baseURL (e.g. http://localhost:4444)
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the registry root this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ports returns every registered allocation keyed by service name.
// Service is filled in from the key since the body does not repeat it.
func (c *Client) Ports(ctx context.Context) (map[string]models.PortEntry, error) {
	url := c.baseURL + "/ports"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach port registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &models.StatusError{Method: http.MethodGet, URL: url, Code: resp.StatusCode, Body: string(body)}
	}

	entries := make(map[string]models.PortEntry)
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to parse port registry: %w", err)
	}
	for name, entry := range entries {
		entry.Service = name
		entries[name] = entry
	}
	return entries, nil
}
