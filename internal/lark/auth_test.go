package lark

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func tokenExchangeServer(t *testing.T, calls *atomic.Int64, token string, expire int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/open_api/authen/plugin_token" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"err_code":0,"err_msg":"","data":{"token":"` + token + `","expire_time":` + strconv.FormatInt(expire, 10) + `}}`))
	}))
}

func TestStaticTokenProvider(t *testing.T) {
	p := NewStaticTokenProvider("tok-123")
	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("expected tok-123, got %s", token)
	}

	empty := NewStaticTokenProvider("")
	if _, err := empty.Token(context.Background()); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for empty token, got %v", err)
	}
}

func TestPluginTokenProvider_CachesToken(t *testing.T) {
	var calls atomic.Int64
	srv := tokenExchangeServer(t, &calls, "plugin-tok", 7200)
	defer srv.Close()

	p := NewPluginTokenProvider(srv.URL, "id", "secret", 5*time.Second, slog.Default())

	for range 3 {
		token, err := p.Token(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if token != "plugin-tok" {
			t.Errorf("expected plugin-tok, got %s", token)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 exchange call, got %d", got)
	}
}

func TestPluginTokenProvider_RefreshesNearExpiry(t *testing.T) {
	var calls atomic.Int64
	srv := tokenExchangeServer(t, &calls, "plugin-tok", 120)
	defer srv.Close()

	now := time.Now()
	p := NewPluginTokenProvider(srv.URL, "id", "secret", 5*time.Second, slog.Default())
	p.now = func() time.Time { return now }

	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Inside the refresh margin the cached token no longer counts as valid.
	now = now.Add(70 * time.Second)
	if _, err := p.Token(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 exchange calls, got %d", got)
	}
}

func TestPluginTokenProvider_SingleFlight(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte(`{"err_code":0,"data":{"token":"t","expire_time":7200}}`))
	}))
	defer srv.Close()

	p := NewPluginTokenProvider(srv.URL, "id", "secret", 5*time.Second, slog.Default())

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Token(context.Background()); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 exchange call for concurrent refresh, got %d", got)
	}
}

func TestPluginTokenProvider_ExchangeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"err_code":40001,"err_msg":"bad plugin secret"}`))
	}))
	defer srv.Close()

	p := NewPluginTokenProvider(srv.URL, "id", "wrong", 5*time.Second, slog.Default())
	_, err := p.Token(context.Background())
	if !errors.Is(err, ErrAuthentication) {
		t.Fatalf("expected ErrAuthentication, got %v", err)
	}
}

func TestPluginTokenProvider_AcceptsPluginTokenKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":0,"data":{"plugin_token":"alt-tok","expire_time":7200}}`))
	}))
	defer srv.Close()

	p := NewPluginTokenProvider(srv.URL, "id", "secret", 5*time.Second, slog.Default())
	token, err := p.Token(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "alt-tok" {
		t.Errorf("expected alt-tok, got %s", token)
	}
}
