// Package writeback pushes scored verdicts to the shop platform.
//
// The verdict lands as an order metafield (namespace "fraudpop", key
// "risk") through the platform REST Admin API, so merchant-facing apps and
// flows can read it next to the order. Writeback is best-effort: the
// stored OrderRisk row is the source of truth and a failed push never
// fails order processing.
package writeback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Kenny3D1/fraudpop/internal/circuitbreaker"
	"github.com/Kenny3D1/fraudpop/internal/metrics"
	"github.com/Kenny3D1/fraudpop/internal/retry"
)

const (
	metafieldNamespace = "fraudpop"
	metafieldKey       = "risk"

	maxAttempts = 3
	baseDelay   = 1500 * time.Millisecond
)

// ErrBreakerOpen is returned when the shop's circuit breaker rejects the
// call before any request is made.
var ErrBreakerOpen = errors.New("writeback breaker open")

// errRedirect marks a redirect response; following one could leak the
// access token to an attacker-controlled host.
var errRedirect = errors.New("redirect not allowed")

// Verdict is the payload written into the order metafield.
type Verdict struct {
	Score   int      `json:"score"`
	Verdict string   `json:"verdict"`
	Reasons []string `json:"reasons"`
}

// Config tunes the writeback client.
type Config struct {
	APIVersion string        // e.g. "2025-01"
	Timeout    time.Duration // per-request
	RetryDelay time.Duration // base of the linear backoff between attempts
	BaseURL    string        // override for tests; default https://{shop}
}

// Client writes verdict metafields via the REST Admin API.
type Client struct {
	httpClient *http.Client
	cfg        Config
	breaker    *circuitbreaker.Breaker
	logger     *slog.Logger
}

// NewClient creates a writeback client. The HTTP client refuses redirects:
// a 3xx from the API is treated as an error, never followed.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = baseDelay
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return fmt.Errorf("%w (location %s)", errRedirect, req.URL)
			},
		},
		cfg:     cfg,
		breaker: circuitbreaker.New(5, 30*time.Second),
		logger:  logger,
	}
}

// Write pushes the verdict metafield for one order. Transient API errors
// (429 and 5xx) are retried up to 3 attempts with linear backoff; anything
// else fails immediately. The breaker is keyed per shop so one melting
// store cannot burn every tenant's attempts.
func (c *Client) Write(ctx context.Context, shop, accessToken, orderID string, v Verdict) error {
	if accessToken == "" {
		metrics.WritebackAttemptsTotal.WithLabelValues("permanent").Inc()
		return retry.Permanent(errors.New("missing access token"))
	}
	if !c.breaker.Allow(shop) {
		metrics.WritebackAttemptsTotal.WithLabelValues("breaker_open").Inc()
		return fmt.Errorf("%w: %s", ErrBreakerOpen, shop)
	}

	valueJSON, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	body, err := json.Marshal(map[string]any{
		"metafield": map[string]any{
			"namespace": metafieldNamespace,
			"key":       metafieldKey,
			"type":      "json",
			"value":     string(valueJSON),
		},
	})
	if err != nil {
		return fmt.Errorf("marshal metafield: %w", err)
	}

	url := c.metafieldURL(shop, orderID)

	err = retry.DoLinear(ctx, maxAttempts, c.cfg.RetryDelay, func() error {
		return c.post(ctx, url, accessToken, body)
	})
	if err != nil {
		c.breaker.RecordFailure(shop)
		c.logger.Warn("verdict writeback failed", "shop", shop, "orderId", orderID, "error", err)
		return err
	}
	c.breaker.RecordSuccess(shop)
	metrics.WritebackAttemptsTotal.WithLabelValues("success").Inc()
	return nil
}

func (c *Client) metafieldURL(shop, orderID string) string {
	base := c.cfg.BaseURL
	if base == "" {
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/orders/%s/metafields.json", base, c.cfg.APIVersion, orderID)
}

func (c *Client) post(ctx context.Context, url, accessToken string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Shopify-Access-Token", accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, errRedirect) {
			metrics.WritebackAttemptsTotal.WithLabelValues("redirect").Inc()
			c.logger.Warn("metafield write redirected, refusing to follow", "url", url, "error", err)
			return retry.Permanent(err)
		}
		// Network errors are worth another attempt.
		metrics.WritebackAttemptsTotal.WithLabelValues("retryable").Inc()
		return fmt.Errorf("post metafield: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		metrics.WritebackAttemptsTotal.WithLabelValues("retryable").Inc()
		return fmt.Errorf("metafield write: status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		metrics.WritebackAttemptsTotal.WithLabelValues("permanent").Inc()
		return retry.Permanent(fmt.Errorf("metafield write: status %d", resp.StatusCode))
	}

	// A login page or error proxy answering 200 with HTML is not success.
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "application/json") {
		metrics.WritebackAttemptsTotal.WithLabelValues("permanent").Inc()
		return retry.Permanent(fmt.Errorf("metafield write: unexpected content type %q", ct))
	}

	var parsed struct {
		Errors any `json:"errors"`
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.WritebackAttemptsTotal.WithLabelValues("retryable").Inc()
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(respBody, &parsed); err == nil && parsed.Errors != nil {
		metrics.WritebackAttemptsTotal.WithLabelValues("permanent").Inc()
		return retry.Permanent(fmt.Errorf("metafield write rejected: %v", parsed.Errors))
	}
	return nil
}
