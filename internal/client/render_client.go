package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
)

// RenderAPI defines the request/response surface of the render service
// used by the progress tracker and the CLI.
type RenderAPI interface {
	StartRender(ctx context.Context, req *model.RenderStartRequest) (*model.RenderStartResponse, error)
	GetStatus(ctx context.Context, jobID string) (*model.RenderStatusResponse, error)
	ListRenders(ctx context.Context) (*model.RenderListResponse, error)
	CancelRender(ctx context.Context, jobID string) error
	DeleteRender(ctx context.Context, jobID string) error
}

// RenderClient implements RenderAPI against the MorphReel HTTP API.
type RenderClient struct {
	httpClient *http.Client
	baseURL    string
	authToken  string
	logger     *zap.Logger
}

// RenderClientConfig configures a RenderClient.
type RenderClientConfig struct {
	BaseURL   string
	AuthToken string
	Timeout   time.Duration
	Logger    *zap.Logger
}

// NewRenderClient creates a client for the render API.
func NewRenderClient(cfg RenderClientConfig) *RenderClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RenderClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		authToken:  cfg.AuthToken,
		logger:     logger,
	}
}

// StartRender submits a new render job. The response carries the job ID
// and the WebSocket URL for real-time progress.
func (c *RenderClient) StartRender(ctx context.Context, req *model.RenderStartRequest) (*model.RenderStartResponse, error) {
	var resp model.RenderStartResponse
	if err := c.do(ctx, http.MethodPost, "/api/render/start", req, &resp); err != nil {
		return nil, fmt.Errorf("start render: %w", err)
	}
	return &resp, nil
}

// GetStatus fetches the current status of a job.
func (c *RenderClient) GetStatus(ctx context.Context, jobID string) (*model.RenderStatusResponse, error) {
	var resp model.RenderStatusResponse
	if err := c.do(ctx, http.MethodGet, "/api/render/status/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return nil, fmt.Errorf("get status: %w", err)
	}
	return &resp, nil
}

// ListRenders fetches the render history.
func (c *RenderClient) ListRenders(ctx context.Context) (*model.RenderListResponse, error) {
	var resp model.RenderListResponse
	if err := c.do(ctx, http.MethodGet, "/api/renders", nil, &resp); err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	return &resp, nil
}

// CancelRender requests cancellation out of band, independent of any
// channel-based cancel frame.
func (c *RenderClient) CancelRender(ctx context.Context, jobID string) error {
	var resp model.RenderCancelResponse
	if err := c.do(ctx, http.MethodPost, "/api/render/cancel/"+url.PathEscape(jobID), nil, &resp); err != nil {
		return fmt.Errorf("cancel render: %w", err)
	}
	return nil
}

// DeleteRender removes a finished job record.
func (c *RenderClient) DeleteRender(ctx context.Context, jobID string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/render/"+url.PathEscape(jobID), nil, nil); err != nil {
		return fmt.Errorf("delete render: %w", err)
	}
	return nil
}

func (c *RenderClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("render_api_request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))

	if resp.StatusCode >= 400 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// APIError is an error envelope returned by the render API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("render API error %d (%s): %s", e.Status, e.Code, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Code == "" {
		return &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: strings.TrimSpace(string(body))}
	}
	return &APIError{Status: resp.StatusCode, Code: envelope.Error.Code, Message: envelope.Error.Message}
}

// WebSocketURL derives the progress channel address for a job from the
// API base URL: the scheme is swapped to the WebSocket scheme and the
// path is parameterized by the job ID.
func WebSocketURL(baseURL, jobID string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws/render/" + url.PathEscape(jobID)
	u.RawQuery = ""
	return u.String(), nil
}
