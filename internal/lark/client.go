package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ClientConfig holds everything needed to build a Client.
type ClientConfig struct {
	BaseURL string
	UserKey string
	Tokens  TokenProvider
	Timeout time.Duration
	Retry   RetryConfig
	Logger  *slog.Logger
}

// Client is the single HTTP gateway to the project API. All requests share
// the same header injection, retry policy, and envelope handling.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userKey    string
	tokens     TokenProvider
	retryer    *Retryer
	logger     *slog.Logger
}

// NewClient creates a client from the given configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userKey:    cfg.UserKey,
		tokens:     cfg.Tokens,
		retryer:    NewRetryer(cfg.Retry, cfg.Logger),
		logger:     cfg.Logger,
	}, nil
}

// do executes one API call and returns the envelope data payload. Transport
// failures and 5xx responses are retried with exponential backoff; envelope
// errors and 4xx are returned immediately.
func (c *Client) do(ctx context.Context, method, path string, payload any) (json.RawMessage, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var data json.RawMessage
	operation := method + " " + path
	err := c.retryer.Do(ctx, operation, func() error {
		var attemptErr error
		data, attemptErr = c.doOnce(ctx, method, path, body)
		return attemptErr
	})
	return data, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-PLUGIN-TOKEN", token)
	req.Header.Set("Content-Type", "application/json")
	if c.userKey != "" {
		req.Header.Set("X-USER-KEY", c.userKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrTransport)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %v: %w", method, path, err, ErrTransport)
	}

	c.logger.Debug("api call",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start).String())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, truncate(string(respBody), 512), method, path)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("%s %s: %v: %w", method, path, err, ErrProtocol)
	}
	code, hasCode := env.code()
	if !hasCode {
		return nil, fmt.Errorf("%s %s: missing envelope code: %w", method, path, ErrProtocol)
	}
	if code != 0 {
		return nil, envelopeError(code, env.message(), method, path)
	}
	return env.Data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// normalizeList converts the three list shapes the API produces into one
// ListResult: a bare array, or an object keyed work_items or data with
// pagination alongside.
func normalizeList(data json.RawMessage) (ListResult, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ListResult{Items: []WorkItem{}}, nil
	}

	if trimmed[0] == '[' {
		var items []WorkItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return ListResult{}, fmt.Errorf("decode item list: %v: %w", err, ErrProtocol)
		}
		return ListResult{Items: items, Pagination: Pagination{Total: len(items)}}, nil
	}

	if trimmed[0] == '{' {
		var obj struct {
			WorkItems  []WorkItem  `json:"work_items"`
			Data       []WorkItem  `json:"data"`
			Pagination *Pagination `json:"pagination"`
			Total      *int        `json:"total"`
		}
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return ListResult{}, fmt.Errorf("decode item list: %v: %w", err, ErrProtocol)
		}
		items := obj.WorkItems
		if items == nil {
			items = obj.Data
		}
		if items == nil {
			// The upstream omits empty arrays; an object without an items
			// key is an empty page.
			items = []WorkItem{}
		}

		result := ListResult{Items: items, Pagination: Pagination{Total: len(items)}}
		if obj.Pagination != nil {
			result.Pagination = *obj.Pagination
		} else if obj.Total != nil {
			result.Pagination.Total = *obj.Total
		}
		return result, nil
	}

	return ListResult{}, fmt.Errorf("unexpected list payload: %w", ErrProtocol)
}
