// Package offload hands oversized videos to a secondary worker that downloads
// and uploads them itself, and implements that worker.
//
// Protocol: POST form fields url and chat_id, authenticated with X-API-Key.
// 200 means the video was delivered, 201 means the worker sent a direct-link
// notice instead, and 501 means it failed.
package offload

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinfetch/internal/media"
	"github.com/JakeFAU/pinfetch/internal/metrics"
)

const apiKeyHeader = "X-API-Key"

// ClientConfig locates the worker.
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Client implements media.Offloader over HTTP.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *zap.Logger
}

var _ media.Offloader = (*Client)(nil)

// NewClient builds a Client. The worker downloads the whole video before
// answering, so Timeout should cover that.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	// The transport propagates trace context to the worker.
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		logger: logger.Named("offload_client"),
	}
}

// Offload posts the video to the worker and returns its status code. An error
// means the worker was never reached or never answered.
func (c *Client) Offload(ctx context.Context, videoURL string, chatID int64) (int, error) {
	if c.cfg.URL == "" {
		metrics.ObserveOffloadResponse(0)
		return 0, fmt.Errorf("offload url is not configured")
	}
	form := url.Values{}
	form.Set("url", videoURL)
	form.Set("chat_id", strconv.FormatInt(chatID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, fmt.Errorf("build offload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveOffloadResponse(0)
		return 0, fmt.Errorf("offload request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	metrics.ObserveOffloadResponse(resp.StatusCode)
	c.logger.Debug("offload answered",
		zap.Int64("chat_id", chatID),
		zap.Int("status", resp.StatusCode),
	)
	return resp.StatusCode, nil
}
