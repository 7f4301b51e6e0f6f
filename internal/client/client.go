// Package client talks to the TaskFlow HTTP API on behalf of the terminal client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"taskflow/internal/handlers/dto"
	"taskflow/internal/logger"
	"taskflow/internal/models/task"
	"taskflow/internal/state"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s (http %d)", e.Code, e.Message, e.Status)
	}
	return fmt.Sprintf("%s (http %d)", e.Code, e.Status)
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

type Client struct {
	base  string
	token string
	http  *http.Client
}

var _ state.Backend = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(baseURL, "/")
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("api url: %w", err)
	}

	c := &Client{
		base: base,
		http: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SetToken(token string) {
	c.token = token
}

// do sends body as JSON and decodes the envelope field key into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, key string, out any) error {
	start := time.Now()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	logger.Debug("Client: API call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("http_status", resp.StatusCode),
		zap.Duration("ms", time.Since(start)))

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&envelope); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(envelope["error"], &apiErr.Code)
		_ = json.Unmarshal(envelope["message"], &apiErr.Message)
		if apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	raw, ok := envelope[key]
	if !ok {
		return fmt.Errorf("%s %s: response has no %q field", method, path, key)
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) Login(ctx context.Context, email, password string) (*dto.SessionResponse, error) {
	var s dto.SessionResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, dto.LoginRequest{Email: email, Password: password}, "session", &s); err != nil {
		return nil, err
	}
	c.token = s.AccessToken
	return &s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, "", nil)
}

func (c *Client) Me(ctx context.Context) (*dto.UserResponse, error) {
	var u dto.UserResponse
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, "user", &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListTasks fetches every task of the user, newest first. Filtering happens locally.
func (c *Client) ListTasks(ctx context.Context, userID uuid.UUID) ([]*task.Task, error) {
	var resp []dto.TaskResponse
	if err := c.do(ctx, http.MethodGet, "/tasks", url.Values{"sort": {"created-desc"}}, nil, "tasks", &resp); err != nil {
		return nil, err
	}
	tasks := make([]*task.Task, 0, len(resp))
	for _, r := range resp {
		t, err := r.ToTask(userID)
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", r.ID, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func (c *Client) taskCall(ctx context.Context, userID uuid.UUID, method, path string, body any) (*task.Task, error) {
	var resp dto.TaskResponse
	if err := c.do(ctx, method, path, nil, body, "task", &resp); err != nil {
		return nil, err
	}
	return resp.ToTask(userID)
}

func (c *Client) GetTask(ctx context.Context, userID, id uuid.UUID) (*task.Task, error) {
	return c.taskCall(ctx, userID, http.MethodGet, "/tasks/"+id.String(), nil)
}

func dueString(t *task.Task) *string {
	if t.DueDate == nil {
		return nil
	}
	s := task.FormatDate(*t.DueDate)
	return &s
}

func (c *Client) CreateTask(ctx context.Context, userID uuid.UUID, draft *task.Task) (*task.Task, error) {
	return c.taskCall(ctx, userID, http.MethodPost, "/tasks", dto.CreateTaskRequest{
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		DueDate:     dueString(draft),
	})
}

// UpdateTask sends every editable field so the server ends up with t exactly.
func (c *Client) UpdateTask(ctx context.Context, userID uuid.UUID, t *task.Task) (*task.Task, error) {
	status := t.Status
	req := dto.UpdateTaskRequest{
		Title:        &t.Title,
		Description:  &t.Description,
		Status:       &status,
		DueDate:      dueString(t),
		ClearDueDate: t.DueDate == nil,
		Version:      t.Version,
	}
	return c.taskCall(ctx, userID, http.MethodPut, "/tasks/"+t.ID.String(), req)
}

func (c *Client) SetStatus(ctx context.Context, userID, id uuid.UUID, status task.Status, version int) (*task.Task, error) {
	return c.taskCall(ctx, userID, http.MethodPatch, "/tasks/"+id.String()+"/status", dto.StatusRequest{Status: status, Version: version})
}

func (c *Client) DeleteTask(ctx context.Context, userID, id uuid.UUID, version int) error {
	var query url.Values
	if version > 0 {
		query = url.Values{"version": {strconv.Itoa(version)}}
	}
	return c.do(ctx, http.MethodDelete, "/tasks/"+id.String(), query, nil, "", nil)
}
