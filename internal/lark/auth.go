package lark

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// refreshMargin is how long before the reported expiry a cached plugin
// token is treated as stale.
const refreshMargin = 60 * time.Second

// TokenProvider supplies the credential sent as X-PLUGIN-TOKEN.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed pre-issued token. It is never
// refreshed, regardless of upstream rejections.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider wraps a pre-issued access token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) Token(_ context.Context) (string, error) {
	if p.token == "" {
		return "", fmt.Errorf("empty access token: %w", ErrAuthentication)
	}
	return p.token, nil
}

// PluginTokenProvider exchanges plugin credentials for a short-lived token
// and caches it until close to expiry. Concurrent refreshes collapse into a
// single exchange request.
type PluginTokenProvider struct {
	httpClient   *http.Client
	baseURL      string
	pluginID     string
	pluginSecret string
	logger       *slog.Logger

	mu        sync.RWMutex
	token     string
	expiresAt time.Time

	group singleflight.Group
	now   func() time.Time
}

// NewPluginTokenProvider creates a provider that exchanges the given plugin
// credentials against baseURL.
func NewPluginTokenProvider(baseURL, pluginID, pluginSecret string, timeout time.Duration, logger *slog.Logger) *PluginTokenProvider {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &PluginTokenProvider{
		httpClient:   &http.Client{Timeout: timeout},
		baseURL:      baseURL,
		pluginID:     pluginID,
		pluginSecret: pluginSecret,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a valid plugin token, refreshing it if the cached one is
// missing or within the refresh margin of expiry.
func (p *PluginTokenProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.cached(); ok {
		return token, nil
	}

	v, err, _ := p.group.Do("refresh", func() (any, error) {
		// Another caller may have refreshed while this one waited.
		if token, ok := p.cached(); ok {
			return token, nil
		}
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *PluginTokenProvider) cached() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.token == "" || p.now().After(p.expiresAt.Add(-refreshMargin)) {
		return "", false
	}
	return p.token, true
}

func (p *PluginTokenProvider) refresh(ctx context.Context) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"plugin_id":     p.pluginID,
		"plugin_secret": p.pluginSecret,
		"type":          "0",
	})
	if err != nil {
		return "", fmt.Errorf("marshal token request: %w", err)
	}

	url := p.baseURL + "/open_api/authen/plugin_token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange: %v: %w", err, ErrAuthentication)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %v: %w", err, ErrAuthentication)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token exchange status %d: %s: %w", resp.StatusCode, string(body), ErrAuthentication)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode token response: %v: %w", err, ErrAuthentication)
	}
	if code, ok := env.code(); ok && code != 0 {
		return "", fmt.Errorf("token exchange rejected: %s (code %d): %w", env.message(), code, ErrAuthentication)
	}

	var data struct {
		Token       string `json:"token"`
		PluginToken string `json:"plugin_token"`
		ExpireTime  int64  `json:"expire_time"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return "", fmt.Errorf("decode token payload: %v: %w", err, ErrAuthentication)
	}

	token := data.Token
	if token == "" {
		token = data.PluginToken
	}
	if token == "" {
		return "", fmt.Errorf("token exchange returned no token: %w", ErrAuthentication)
	}

	expire := data.ExpireTime
	if expire <= 0 {
		expire = 7200
	}

	p.mu.Lock()
	p.token = token
	p.expiresAt = p.now().Add(time.Duration(expire) * time.Second)
	p.mu.Unlock()

	p.logger.Debug("plugin token refreshed", "expires_in", expire)
	return token, nil
}
