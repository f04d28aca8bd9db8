// Package client talks to the scheduler daemon over its REST and WebSocket
// API. It is what shop-floor viewers and remote CLIs use when they are not
// on the daemon's machine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formemu/aditim-monitor-sub000/internal/api"
	"github.com/formemu/aditim-monitor-sub000/internal/logging"
)

const (
	defaultRequestTimeout = 30 * time.Second
	defaultInitialBackoff = time.Second
	defaultMaxBackoff     = 5 * time.Second
	maxErrorBody          = 64 << 10
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for REST calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger used by Watch.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "client")
	}
}

// WithBackoff bounds the delay between WebSocket reconnect attempts.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialBackoff = initial
		}
		if maxDelay >= c.initialBackoff {
			c.maxBackoff = maxDelay
		}
	}
}

// Client calls the daemon API. It implements api.Commands.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	logger *slog.Logger

	initialBackoff time.Duration
	maxBackoff     time.Duration
}

var _ api.Commands = (*Client)(nil)

// New builds a client for the daemon at baseURL (for example
// "http://127.0.0.1:7490"). token, when set, is sent as a bearer credential.
func New(baseURL, token string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", baseURL)
	}
	c := &Client{
		base:           base,
		token:          strings.TrimSpace(token),
		http:           &http.Client{Timeout: defaultRequestTimeout},
		logger:         logging.NewNop(),
		initialBackoff: defaultInitialBackoff,
		maxBackoff:     defaultMaxBackoff,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = c.base.Path + "/api" + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// decodeError rebuilds the domain error carried by an error response.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Code == "" {
		text := strings.TrimSpace(string(data))
		if text == "" {
			text = resp.Status
		}
		return api.NewError("", fmt.Sprintf("http %d: %s", resp.StatusCode, text))
	}
	return api.NewError(body.Code, body.Error)
}

func idPath(prefix string, id int64, suffix string) string {
	return prefix + "/" + strconv.FormatInt(id, 10) + suffix
}

// Health reports daemon liveness. It needs no credential.
func (c *Client) Health(ctx context.Context) (*api.Health, error) {
	var out api.Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DaemonStatus describes the running daemon.
func (c *Client) DaemonStatus(ctx context.Context) (*api.DaemonStatus, error) {
	var out api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/status", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateTask(ctx context.Context, req api.CreateTaskRequest) (*api.TaskDetail, error) {
	var out api.TaskDetail
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetTask(ctx context.Context, id int64) (*api.TaskDetail, error) {
	var out api.TaskDetail
	if err := c.do(ctx, http.MethodGet, idPath("/tasks", id, ""), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListTasks(ctx context.Context, statuses []string) ([]api.Task, error) {
	var query url.Values
	if len(statuses) > 0 {
		query = url.Values{"status": statuses}
	}
	var out []api.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UpdateTask(ctx context.Context, id int64, req api.UpdateTaskRequest) (*api.Task, error) {
	var out api.Task
	if err := c.do(ctx, http.MethodPatch, idPath("/tasks", id, ""), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteTask(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, idPath("/tasks", id, ""), nil, nil, nil)
}

func (c *Client) ChangeStatus(ctx context.Context, id int64, req api.StatusChangeRequest) (*api.Task, error) {
	var out api.Task
	if err := c.do(ctx, http.MethodPost, idPath("/tasks", id, "/status"), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListQueue(ctx context.Context) ([]api.Task, error) {
	var out []api.Task
	if err := c.do(ctx, http.MethodGet, "/queue", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ReorderQueue(ctx context.Context, ids []int64) error {
	if ids == nil {
		ids = []int64{}
	}
	return c.do(ctx, http.MethodPut, "/queue", nil, api.ReorderRequest{TaskIDs: ids}, nil)
}

func (c *Client) CheckQueue(ctx context.Context, repair bool) (*api.QueueCheck, error) {
	method := http.MethodGet
	if repair {
		method = http.MethodPost
	}
	var out api.QueueCheck
	if err := c.do(ctx, method, "/queue/check", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ComponentPlan(ctx context.Context, componentID int64) (*api.ComponentPlan, error) {
	var out api.ComponentPlan
	if err := c.do(ctx, http.MethodGet, idPath("/components", componentID, "/stages"), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) NextStage(ctx context.Context, componentID int64) (*api.Stage, error) {
	var out api.NextStageResponse
	if err := c.do(ctx, http.MethodGet, idPath("/components", componentID, "/next"), nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Stage, nil
}

func (c *Client) StartStage(ctx context.Context, stageID int64, req api.StartStageRequest) (*api.Stage, error) {
	var out api.Stage
	if err := c.do(ctx, http.MethodPost, idPath("/stages", stageID, "/start"), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) FinishStage(ctx context.Context, stageID int64, req api.FinishStageRequest) (*api.Stage, error) {
	var out api.Stage
	if err := c.do(ctx, http.MethodPost, idPath("/stages", stageID, "/finish"), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Directory(ctx context.Context, kind string) ([]api.DirectoryEntry, error) {
	var out []api.DirectoryEntry
	if err := c.do(ctx, http.MethodGet, "/directory/"+url.PathEscape(kind), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats is served from the daemon status, which embeds it.
func (c *Client) Stats(ctx context.Context) (*api.Stats, error) {
	status, err := c.DaemonStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &status.Stats, nil
}
