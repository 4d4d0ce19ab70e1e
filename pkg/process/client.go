package process

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/devports/kdcdash/pkg/models"
)

// ErrInvalidStartScript rejects start commands the process manager cannot exec directly
var ErrInvalidStartScript = errors.New("invalid start script")

// BulkOp is a fleet-wide lifecycle command
type BulkOp string

const (
	BulkStartAll BulkOp = "start-all"
	BulkStopAll  BulkOp = "stop-all"
	BulkShutdown BulkOp = "shutdown"
)

// Client talks to the pmctl process manager service
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a pmctl client rooted at baseURL (e.g. http://localhost:7777)
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the pmctl root this client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Projects returns the tracked project map with each Project.ID set to its key
func (c *Client) Projects(ctx context.Context) (map[string]models.Project, error) {
	projects := make(map[string]models.Project)
	if err := c.do(ctx, http.MethodGet, "/api/projects", nil, &projects); err != nil {
		return nil, err
	}
	for id, p := range projects {
		p.ID = id
		projects[id] = p
	}
	return projects, nil
}

// SystemStats returns host-wide CPU and memory gauges
func (c *Client) SystemStats(ctx context.Context) (*models.SystemStats, error) {
	var stats models.SystemStats
	if err := c.do(ctx, http.MethodGet, "/api/system/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// AddProject registers a new project. A false Success is not an error; the
// caller shows Message to the operator.
func (c *Client) AddProject(ctx context.Context, p models.NewProject) (models.ActionResult, error) {
	if p.StartScript != nil {
		if _, err := SplitCommand(*p.StartScript); err != nil {
			return models.ActionResult{}, fmt.Errorf("%w: %w", ErrInvalidStartScript, err)
		}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return models.ActionResult{}, fmt.Errorf("failed to encode project: %w", err)
	}
	var result models.ActionResult
	if err := c.do(ctx, http.MethodPost, "/api/projects", body, &result); err != nil {
		return models.ActionResult{}, err
	}
	return result, nil
}

// DeleteProject removes a project from pmctl tracking
func (c *Client) DeleteProject(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/projects/"+url.PathEscape(id), nil, nil)
}

// Action issues one lifecycle verb for a project. Only a transport failure is
// an error. For start, stop and restart any answer counts as issued and
// Success reports whether it was 2xx. For sync the {success, message} body is
// decoded whatever the status code.
func (c *Client) Action(ctx context.Context, id string, verb models.Verb) (models.ActionResult, error) {
	if _, err := models.ParseVerb(string(verb)); err != nil {
		return models.ActionResult{}, err
	}
	path := "/api/projects/" + url.PathEscape(id) + "/" + string(verb)
	code, raw, err := c.exchange(ctx, http.MethodPost, path, nil)
	if err != nil {
		return models.ActionResult{}, err
	}
	ok := code >= 200 && code <= 299

	if verb != models.VerbSync {
		if ok {
			return models.ActionResult{Success: true}, nil
		}
		return models.ActionResult{Success: false, Message: statusMessage(code, raw)}, nil
	}

	var result models.ActionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		if ok {
			return models.ActionResult{Success: false, Message: "unreadable sync response"}, nil
		}
		return models.ActionResult{Success: false, Message: statusMessage(code, raw)}, nil
	}
	return result, nil
}

func statusMessage(code int, body []byte) string {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		return fmt.Sprintf("pmctl answered %d %s", code, http.StatusText(code))
	}
	return fmt.Sprintf("pmctl answered %d: %s", code, msg)
}

// Bulk issues a fleet-wide command; the response body is ignored
func (c *Client) Bulk(ctx context.Context, op BulkOp) error {
	switch op {
	case BulkStartAll, BulkStopAll, BulkShutdown:
	default:
		return fmt.Errorf("unknown bulk operation %q", op)
	}
	return c.do(ctx, http.MethodPost, "/api/pm2/"+string(op), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	raw, err := c.send(ctx, method, path, body)
	if err != nil || out == nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}

// send performs one request and returns the body of a 2xx response
func (c *Client) send(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	code, raw, err := c.exchange(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	if code < 200 || code > 299 {
		return nil, &models.StatusError{Method: method, URL: c.baseURL + path, Code: code, Body: string(raw)}
	}
	return raw, nil
}

// exchange performs one request and returns whatever the server answered.
// Only transport failures are errors. Non-2xx bodies are capped at 4 KiB.
func (c *Client) exchange(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to reach pmctl: %w", err)
	}
	defer resp.Body.Close()

	var src io.Reader = resp.Body
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		src = io.LimitReader(resp.Body, 4096)
	}
	raw, err := io.ReadAll(src)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	return resp.StatusCode, raw, nil
}
