// Foreman - Multi-Agent Orchestration Daemon
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/foreman

/*
Package client is the HTTP client for the Foreman control API.

The foreman CLI uses it for every subcommand except start, and worker
programs use it to report task outcomes:

	c := client.New(os.Getenv("FOREMAN_API"))
	if err := c.CompleteTask(ctx, taskID, 0); err != nil {
	    // errors.Is(err, models.ErrInvalidTransition) etc.
	}

Error responses are returned as *APIError, which matches the models sentinel
for its code under errors.Is.
*/
package client

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/foreman/internal/models"
)

// DefaultTimeout bounds every non-streaming request.
const DefaultTimeout = 30 * time.Second

// Client talks to one supervisor.
type Client struct {
	baseURL    string
	httpClient *http.Client
	stream     *http.Client
}

// New creates a client for baseURL, e.g. http://127.0.0.1:7478.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		stream:     &http.Client{},
	}
}

// WithHTTPClient replaces the client used for non-streaming requests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

// BaseURL returns the API root this client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// envelope mirrors models.APIResponse with a deferred data payload.
type envelope struct {
	Status string           `json:"status"`
	Data   json.RawMessage  `json:"data"`
	Error  *models.APIError `json:"error"`
}

// do sends one request and decodes the envelope's data into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Status == "error" {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}

// Live returns nil when the supervisor answers its liveness probe.
func (c *Client) Live(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health/live", nil, nil)
}

// Status returns worker status, optionally for one agent.
func (c *Client) Status(ctx context.Context, agentID string) (*models.StatusReport, error) {
	var out models.StatusReport
	if err := c.do(ctx, http.MethodGet, "/api/v1/status"+query("agent", agentID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue returns Queued task counts, optionally for one agent.
func (c *Client) Queue(ctx context.Context, agentID string) ([]models.QueueDepth, error) {
	var out []models.QueueDepth
	if err := c.do(ctx, http.MethodGet, "/api/v1/queue"+query("agent", agentID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Bottlenecks returns the slowest completed tasks and duration percentiles.
func (c *Client) Bottlenecks(ctx context.Context, limit int) (*models.BottleneckReport, error) {
	var out models.BottleneckReport
	path := "/api/v1/bottlenecks"
	if limit > 0 {
		path += query("limit", strconv.Itoa(limit))
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AgentMetrics returns aggregate stats and samples for one agent.
func (c *Client) AgentMetrics(ctx context.Context, agentID string, hours int) (*models.AgentMetrics, error) {
	var out models.AgentMetrics
	path := "/api/v1/agents/" + url.PathEscape(agentID) + "/metrics"
	if hours > 0 {
		path += query("hours", strconv.Itoa(hours))
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Alerts returns recent alerts, newest first.
func (c *Client) Alerts(ctx context.Context, limit int) ([]models.Alert, error) {
	var out []models.Alert
	if err := c.do(ctx, http.MethodGet, "/api/v1/alerts"+query("limit", strconv.Itoa(limit)), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FollowAlerts calls fn for each alert emitted until ctx is cancelled, the
// server closes the stream, or fn returns an error.
func (c *Client) FollowAlerts(ctx context.Context, fn func(models.Alert) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/alerts/stream", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("open alert stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &APIError{StatusCode: resp.StatusCode, Message: "alert stream unavailable"}
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var alert models.Alert
		if err := json.Unmarshal(line, &alert); err != nil {
			return fmt.Errorf("decode alert: %w", err)
		}
		if err := fn(alert); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read alert stream: %w", err)
	}
	return ctx.Err()
}

// Enqueue submits a task and returns its id.
func (c *Client) Enqueue(ctx context.Context, req *models.EnqueueRequest) (string, error) {
	var out models.EnqueueResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", req, &out); err != nil {
		return "", err
	}
	return out.TaskID, nil
}

// GetTask fetches one task.
func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartTask claims a specific Queued task.
func (c *Client) StartTask(ctx context.Context, id, owner string) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id, "start"), models.StartRequest{Owner: owner}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteTask marks a Running task Completed. Zero durationMillis lets the
// supervisor measure wall-clock time.
func (c *Client) CompleteTask(ctx context.Context, id string, durationMillis int64) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id, "complete"), models.CompleteRequest{DurationMillis: durationMillis}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FailTask marks a Running task Failed.
func (c *Client) FailTask(ctx context.Context, id, message string) (*models.Task, error) {
	var out models.Task
	if err := c.do(ctx, http.MethodPost, taskPath(id, "fail"), models.FailRequest{ErrorMessage: message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Cleanup runs a retention pass. Zero days uses the supervisor's configured retention.
func (c *Client) Cleanup(ctx context.Context, olderThanDays int) (int, error) {
	var out models.CleanupResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/cleanup", models.CleanupRequest{OlderThanDays: olderThanDays}, &out); err != nil {
		return 0, err
	}
	return out.Removed, nil
}

// Shutdown asks the supervisor to stop.
func (c *Client) Shutdown(ctx context.Context, force bool) error {
	return c.do(ctx, http.MethodPost, "/api/v1/shutdown", models.ShutdownRequest{Force: force}, nil)
}

func taskPath(id, action string) string {
	p := "/api/v1/tasks/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func query(key, value string) string {
	if value == "" {
		return ""
	}
	return "?" + url.Values{key: []string{value}}.Encode()
}
