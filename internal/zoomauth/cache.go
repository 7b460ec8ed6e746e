package zoomauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"alertgateway/internal/clock"
	"alertgateway/internal/config"
	"alertgateway/internal/failure"
	"alertgateway/internal/metrics"
)

const grantType = "account_credentials"

// Token is one cached access token.
// Params: opaque token value and absolute expiry instant.
// Returns: credential state owned by Cache.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Valid reports whether token is present and unexpired at now.
func (t Token) Valid(now time.Time) bool {
	return t.AccessToken != "" && now.Before(t.ExpiresAt)
}

// Grant is what callers receive from Get.
// Params: token value, expiry, and ready-to-use request headers.
// Returns: bearer credential for Zoom API calls.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
	Header      http.Header
}

// Cache holds one Zoom server-to-server OAuth token and refreshes it on expiry.
// Params: account credentials, http client, clock, logger, and metrics.
// Returns: concurrency-safe credential source.
type Cache struct {
	cfg     config.ZoomConfig
	client  *http.Client
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Registry

	mu    sync.Mutex
	token Token
}

// Option customizes Cache.
type Option func(*Cache)

// WithHTTPClient overrides outbound client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithClock overrides time source.
func WithClock(clk clock.Clock) Option {
	return func(c *Cache) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithMetrics attaches request counters.
func WithMetrics(registry *metrics.Registry) Option {
	return func(c *Cache) {
		c.metrics = registry
	}
}

// New builds empty credential cache.
// Params: zoom config, logger, and options.
// Returns: cache without token (first Get exchanges).
func New(cfg config.ZoomConfig, logger *slog.Logger, opts ...Option) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	timeoutSec := cfg.TimeoutSec
	if timeoutSec <= 0 {
		timeoutSec = 10
	}
	c := &Cache{
		cfg:    cfg,
		client: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		clock:  clock.RealClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a valid bearer grant, exchanging credentials only when needed.
// Lock is held across the exchange so concurrent callers share one refresh.
// Params: ctx for exchange request.
// Returns: grant or failure.TokenExchangeFailed (cache left untouched on failure).
func (c *Cache) Get(ctx context.Context) (Grant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid(c.clock.Now()) {
		c.metrics.TokenRequest(metrics.OutcomeCached)
		return grantFor(c.token), nil
	}

	token, err := c.exchange(ctx)
	if err != nil {
		c.metrics.TokenRequest(metrics.OutcomeError)
		c.logger.Warn("zoom token exchange failed", "error", err)
		return Grant{}, err
	}
	c.token = token
	c.metrics.TokenRequest(metrics.OutcomeSuccess)
	c.logger.Debug("zoom token refreshed", "expires_at", token.ExpiresAt)
	return grantFor(token), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// exchange runs one account_credentials grant.
// Params: ctx for outbound call.
// Returns: fresh token or typed failure.
func (c *Cache) exchange(ctx context.Context) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", grantType)
	form.Set("account_id", c.cfg.AccountID)

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.OAuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, failure.TokenExchangeFailed{Err: fmt.Errorf("build request: %w", err)}
	}
	request.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	requestedAt := c.clock.Now()
	response, err := c.client.Do(request)
	if err != nil {
		return Token{}, failure.TokenExchangeFailed{Err: err}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 64<<10))
	if err != nil {
		return Token{}, failure.TokenExchangeFailed{Status: response.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return Token{}, failure.TokenExchangeFailed{
			Status: response.StatusCode,
			Err:    fmt.Errorf("body=%s", strings.TrimSpace(string(body))),
		}
	}

	var decoded tokenResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return Token{}, failure.TokenExchangeFailed{Status: response.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	if decoded.AccessToken == "" {
		return Token{}, failure.TokenExchangeFailed{Status: response.StatusCode, Err: errors.New("access_token is empty")}
	}
	return Token{
		AccessToken: decoded.AccessToken,
		ExpiresAt:   requestedAt.Add(time.Duration(decoded.ExpiresIn) * time.Second),
	}, nil
}

func grantFor(token Token) Grant {
	header := make(http.Header)
	header.Set("Authorization", "Bearer "+token.AccessToken)
	header.Set("Content-Type", "application/json")
	return Grant{AccessToken: token.AccessToken, ExpiresAt: token.ExpiresAt, Header: header}
}
