package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultAuthURL   = "https://login.tado.com/oauth2/device_authorize"
	DefaultTokenURL  = "https://login.tado.com/oauth2/token"
	DefaultHopsURL   = "https://hops.tado.com"
	DefaultMyURL     = "https://my.tado.com/api/v2"
	DefaultEIQURL    = "https://energy-insights.tado.com/api"
	DefaultMinderURL = "https://minder.tado.com/v1"

	// DefaultClientID is the public client registered for device linking.
	DefaultClientID = "1bb50063-6b0c-4d11-bd99-387f4a91cc46"

	defaultTimeout = 30 * time.Second
)

type Config struct {
	ClientID  string
	AuthURL   string
	TokenURL  string
	HopsURL   string
	MyURL     string
	EIQURL    string
	MinderURL string

	// Timeout bounds a single request. Ignored when HTTPClient is set.
	Timeout time.Duration
	// MinRequestSpacing paces requests; zero disables pacing.
	MinRequestSpacing time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger

	// OnTokenRefresh is called after every successful token exchange so the
	// new token can be persisted.
	OnTokenRefresh func(Token)

	Now func() time.Time
}

// Client talks to the vendor REST API on behalf of one account.
type Client struct {
	cfg     Config
	http    *http.Client
	oauth   *oauth2.Config
	limiter *rate.Limiter
	log     *slog.Logger
	now     func() time.Time

	homeID atomic.Int64

	tokenMu sync.Mutex
	token   Token

	budgetMu sync.Mutex
	budget   budget
}

func New(cfg Config) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	if cfg.HopsURL == "" {
		cfg.HopsURL = DefaultHopsURL
	}
	if cfg.MyURL == "" {
		cfg.MyURL = DefaultMyURL
	}
	if cfg.EIQURL == "" {
		cfg.EIQURL = DefaultEIQURL
	}
	if cfg.MinderURL == "" {
		cfg.MinderURL = DefaultMinderURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout, Transport: newTransport()}
	}

	limit := rate.Inf
	if cfg.MinRequestSpacing > 0 {
		limit = rate.Every(cfg.MinRequestSpacing)
	}

	return &Client{
		cfg:  cfg,
		http: hc,
		oauth: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				DeviceAuthURL: cfg.AuthURL,
				TokenURL:      cfg.TokenURL,
				AuthStyle:     oauth2.AuthStyleInParams,
			},
			Scopes: []string{"offline_access"},
		},
		limiter: rate.NewLimiter(limit, 1),
		log:     cfg.Logger,
		now:     cfg.Now,
	}
}

// newTransport enables HTTP/2 health-check pings so a stalled connection is
// dropped between polls instead of failing the next refresh.
func newTransport() http.RoundTripper {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if h2, err := http2.ConfigureTransports(t); err == nil {
		h2.ReadIdleTimeout = 30 * time.Second
		h2.PingTimeout = 15 * time.Second
	}
	return t
}

func (c *Client) SetHomeID(id int) { c.homeID.Store(int64(id)) }

func (c *Client) HomeID() int { return int(c.homeID.Load()) }

// Stats returns the current request budget.
func (c *Client) Stats() Stats {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	return c.budget.stats()
}

// RestoreStats seeds the counters persisted by a previous run.
func (c *Client) RestoreStats(callsToday int, resetTime time.Time, hasAutoAssist bool) {
	c.budgetMu.Lock()
	defer c.budgetMu.Unlock()
	c.budget.callsToday = callsToday
	c.budget.resetTime = resetTime
	c.budget.hasAutoAssist = hasAutoAssist
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// do sends an authenticated request and decodes the JSON result into out.
// A 401 triggers one token refresh and one retry.
func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	if err := c.ensureValidToken(ctx); err != nil {
		return err
	}

	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, url, err)
		}
		payload = b
	}

	resp, err := c.send(ctx, method, url, payload)
	if err != nil {
		return err
	}
	if resp.status == http.StatusUnauthorized {
		c.log.DebugContext(ctx, "access token rejected, refreshing", slog.String("url", url))
		if err := c.RefreshAccessToken(ctx); err != nil {
			return err
		}
		if resp, err = c.send(ctx, method, url, payload); err != nil {
			return err
		}
	}
	return c.decode(resp, method, url, out)
}

func (c *Client) send(ctx context.Context, method, url string, payload []byte) (*response, error) {
	c.budgetMu.Lock()
	reset, exhausted := c.budget.exhausted(c.now())
	c.budgetMu.Unlock()
	if exhausted {
		return nil, &RateLimitError{Reset: reset}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("request pacing: %w", err)
	}

	var rd io.Reader
	if payload != nil {
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	// A request counts against the quota once it has been written, even if
	// no response comes back.
	req = req.WithContext(httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err != nil {
				return
			}
			c.budgetMu.Lock()
			c.budget.count(c.now())
			c.budgetMu.Unlock()
		},
	}))

	res, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &APIError{StatusCode: res.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	now := c.now()
	c.budgetMu.Lock()
	c.budget.observe(res.Header, now)
	calls := c.budget.callsToday
	c.budgetMu.Unlock()

	c.log.DebugContext(ctx, "api request",
		slog.String("method", method),
		slog.String("url", url),
		slog.Int("status", res.StatusCode),
		slog.Int("calls_today", calls),
	)

	return &response{status: res.StatusCode, header: res.Header, body: data}, nil
}

func (c *Client) decode(resp *response, method, url string, out any) error {
	switch {
	case resp.status == http.StatusTooManyRequests:
		c.budgetMu.Lock()
		reset := c.budget.throttled(resp.header, c.now())
		c.budgetMu.Unlock()
		c.log.Warn("api rate limit hit", slog.String("url", url), slog.Time("reset", reset))
		return &RateLimitError{Reset: reset}
	case resp.status < 200 || resp.status > 299:
		return &APIError{StatusCode: resp.status, Body: strings.TrimSpace(string(resp.body))}
	case resp.status == http.StatusNoContent || len(bytes.TrimSpace(resp.body)) == 0 || out == nil:
		return nil
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return &APIError{StatusCode: resp.status, Body: truncate(string(resp.body), 256), Err: fmt.Errorf("decode %s %s: %w", method, url, err)}
	}
	return nil
}

func (c *Client) homeURL(base, path string) (string, error) {
	id := c.HomeID()
	if id == 0 {
		return "", ErrHomeNotSet
	}
	return fmt.Sprintf("%s/homes/%d/%s", strings.TrimRight(base, "/"), id, strings.TrimPrefix(path, "/")), nil
}

func (c *Client) homeRequest(ctx context.Context, method, base, path string, body, out any) error {
	url, err := c.homeURL(base, path)
	if err != nil {
		return err
	}
	return c.do(ctx, method, url, body, out)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
