package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Wulnut/lark-agent/internal/api"
	"github.com/Wulnut/lark-agent/internal/config"
	"github.com/Wulnut/lark-agent/internal/lark"
	"github.com/Wulnut/lark-agent/internal/logging"
	"github.com/Wulnut/lark-agent/internal/mcp"
	"github.com/Wulnut/lark-agent/internal/resolver"
	"github.com/Wulnut/lark-agent/internal/service"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting lark-agent",
		"version", version,
		"mode", cfg.Server.Mode,
		"base_url", cfg.Lark.BaseURL,
		"token", logging.MaskToken(cfg.Lark.AccessToken))

	var tokens lark.TokenProvider
	if cfg.Lark.AccessToken != "" {
		tokens = lark.NewStaticTokenProvider(cfg.Lark.AccessToken)
	} else {
		tokens = lark.NewPluginTokenProvider(
			cfg.Lark.BaseURL,
			cfg.Lark.PluginID,
			cfg.Lark.PluginSecret,
			time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second,
			logger)
	}

	client, err := lark.NewClient(lark.ClientConfig{
		BaseURL: cfg.Lark.BaseURL,
		UserKey: cfg.Lark.UserKey,
		Tokens:  tokens,
		Timeout: time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		Retry: lark.RetryConfig{
			MaxAttempts:     cfg.HTTP.MaxAttempts,
			InitialBackoff:  time.Duration(cfg.HTTP.InitialBackoffMS) * time.Millisecond,
			MaxBackoff:      time.Duration(cfg.HTTP.MaxBackoffSeconds) * time.Second,
			BackoffMultiple: cfg.HTTP.BackoffMultiple,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	meta := resolver.New(client, resolver.Config{
		ProjectTTL: time.Duration(cfg.Resolver.ProjectTTLSeconds) * time.Second,
		TypeTTL:    time.Duration(cfg.Resolver.TypeTTLSeconds) * time.Second,
		FieldTTL:   time.Duration(cfg.Resolver.FieldTTLSeconds) * time.Second,
		UserTTL:    time.Duration(cfg.Resolver.UserTTLSeconds) * time.Second,
	}, logger)

	svc := service.New(client, meta, service.Config{
		DefaultProject: cfg.Lark.DefaultProject,
		DefaultType:    cfg.Lark.DefaultWorkItemType,
	}, logger)

	mcpServer := mcp.NewServer(svc, version, logger)
	apiServer := api.NewServer(cfg.Server.APIAddress, svc, logger)

	errCh := make(chan error, 2)
	go func() {
		if err := apiServer.Start(); err != nil {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()
	go func() {
		switch cfg.Server.Mode {
		case "sse":
			if err := mcpServer.ServeSSE(cfg.Server.MCPAddress); err != nil {
				errCh <- fmt.Errorf("mcp sse: %w", err)
			}
		default:
			if err := mcpServer.ServeStdio(); err != nil {
				errCh <- fmt.Errorf("mcp stdio: %w", err)
			}
			// stdio ends when the client closes the pipe
			errCh <- nil
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := mcpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("mcp shutdown", "error", err)
	}
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	logger.Info("stopped")
	return nil
}
