package health

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Health status levels
type HealthStatus string

const (
	HealthOK      HealthStatus = "ok"
	HealthSlow    HealthStatus = "slow"
	HealthTimeout HealthStatus = "timeout"
	HealthDown    HealthStatus = "down"
	HealthUnknown HealthStatus = "unknown"
)

// HealthCheck represents the result of a responsiveness probe
type HealthCheck struct {
	Target     string       `json:"target" yaml:"target"`
	Status     HealthStatus `json:"status" yaml:"status"`
	ResponseMs int          `json:"response_ms" yaml:"response_ms"`
	Message    string       `json:"message" yaml:"message"`
	LastCheck  time.Time    `json:"last_check" yaml:"last_check"`
}

// Checker probes project ports and backend endpoints
type Checker struct {
	timeout time.Duration
	client  *http.Client
}

// NewChecker creates a new health checker
func NewChecker(timeout time.Duration) *Checker {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Checker{timeout: timeout, client: &http.Client{Timeout: timeout}}
}

// Check probes host:port over HTTP, falling back to a bare TCP connect
func (c *Checker) Check(ctx context.Context, host string, port int) *HealthCheck {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	result := &HealthCheck{Target: addr, LastCheck: time.Now()}

	if ok, ms := c.checkHTTP(ctx, "http://"+addr); ok {
		result.Status = categorizeResponse(ms)
		result.ResponseMs = ms
		result.Message = fmt.Sprintf("HTTP responding in %dms", ms)
		return result
	}

	if ok, ms := c.checkTCP(ctx, addr); ok {
		result.Status = categorizeResponse(ms)
		result.ResponseMs = ms
		result.Message = fmt.Sprintf("TCP responding in %dms", ms)
		return result
	}

	result.Status = HealthDown
	result.Message = "no response"
	return result
}

// CheckURL probes an HTTP endpoint; any status below 500 counts as responding
func (c *Checker) CheckURL(ctx context.Context, url string) *HealthCheck {
	result := &HealthCheck{Target: url, LastCheck: time.Now()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Status = HealthUnknown
		result.Message = err.Error()
		return result
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	ms := int(time.Since(start).Milliseconds())
	if err != nil {
		result.Status = HealthDown
		result.Message = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.ResponseMs = ms
	if resp.StatusCode >= 500 {
		result.Status = HealthDown
		result.Message = fmt.Sprintf("HTTP %d in %dms", resp.StatusCode, ms)
		return result
	}
	result.Status = categorizeResponse(ms)
	result.Message = fmt.Sprintf("HTTP %d in %dms", resp.StatusCode, ms)
	return result
}

func (c *Checker) checkHTTP(ctx context.Context, url string) (bool, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()

	return true, elapsed
}

func (c *Checker) checkTCP(ctx context.Context, addr string) (bool, int) {
	dialer := net.Dialer{Timeout: c.timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	elapsed := int(time.Since(start).Milliseconds())

	if err != nil {
		return false, 0
	}
	defer conn.Close()

	return true, elapsed
}

// categorizeResponse categorizes response time into status
func categorizeResponse(ms int) HealthStatus {
	if ms > 5000 {
		return HealthTimeout
	}
	if ms > 2000 {
		return HealthSlow
	}
	return HealthOK
}

// StatusIcon returns an emoji for the health status
func StatusIcon(status HealthStatus) string {
	switch status {
	case HealthOK:
		return "✅"
	case HealthSlow:
		return "⚠️"
	case HealthTimeout:
		return "🐢"
	case HealthDown:
		return "❌"
	default:
		return "❓"
	}
}
