package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/oauth2"
)

const (
	// refreshMargin is how long before expiry an access token is replaced.
	refreshMargin = 60 * time.Second
	// defaultTokenLifetime applies when the token response has no expires_in.
	defaultTokenLifetime = 600 * time.Second

	deviceAuthTimeout      = 30 * time.Second
	DefaultDeviceAuthLimit = 300 * time.Second
)

type Token struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// DeviceAuth is the pending device authorization shown to the user.
type DeviceAuth struct {
	DeviceCode              string
	UserCode                string
	VerificationURI         string
	VerificationURIComplete string
	Expiry                  time.Time
	Interval                time.Duration
}

// SetToken installs previously persisted credentials.
func (c *Client) SetToken(t Token) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	c.token = t
}

func (c *Client) Token() Token {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token
}

func (c *Client) accessToken() string {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()
	return c.token.AccessToken
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// StartDeviceAuth begins the device authorization flow.
func (c *Client) StartDeviceAuth(ctx context.Context) (DeviceAuth, error) {
	ctx, cancel := context.WithTimeout(ctx, deviceAuthTimeout)
	defer cancel()

	c.log.DebugContext(ctx, "starting device authorization", slog.String("url", c.cfg.AuthURL))
	da, err := c.oauth.DeviceAuth(c.oauthContext(ctx))
	if err != nil {
		c.log.ErrorContext(ctx, "device authorization failed", slog.Any("error", err))
		return DeviceAuth{}, &AuthError{Op: "device authorize", Err: err}
	}
	c.log.DebugContext(ctx, "device authorization started", slog.String("user_code", da.UserCode))

	return DeviceAuth{
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		Expiry:                  da.Expiry,
		Interval:                time.Duration(da.Interval) * time.Second,
	}, nil
}

// PollForToken waits for the user to approve the device code. It returns
// ErrDeviceAuthTimeout when limit elapses first.
func (c *Client) PollForToken(ctx context.Context, da DeviceAuth, limit time.Duration) error {
	if limit <= 0 {
		limit = DefaultDeviceAuthLimit
	}
	pollCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	resp := &oauth2.DeviceAuthResponse{
		DeviceCode:              da.DeviceCode,
		UserCode:                da.UserCode,
		VerificationURI:         da.VerificationURI,
		VerificationURIComplete: da.VerificationURIComplete,
		Expiry:                  da.Expiry,
		Interval:                int64(da.Interval / time.Second),
	}
	tok, err := c.oauth.DeviceAccessToken(c.oauthContext(pollCtx), resp)
	if err != nil {
		// oauth2 formats transport errors with %v, so check the context
		// rather than the error chain.
		if ctx.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || pollCtx.Err() != nil) {
			return ErrDeviceAuthTimeout
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.ErrorContext(ctx, "device token exchange failed", slog.Any("error", err))
		return &AuthError{Op: "device token", Err: err}
	}

	c.tokenMu.Lock()
	t := c.applyToken(tok)
	c.tokenMu.Unlock()
	c.notifyToken(t)
	return nil
}

// RefreshAccessToken exchanges the refresh token for a new access token.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	c.tokenMu.Lock()
	t, err := c.refreshLocked(ctx)
	c.tokenMu.Unlock()
	if err != nil {
		return err
	}
	c.notifyToken(t)
	return nil
}

// ensureValidToken refreshes the access token when it expires within refreshMargin.
func (c *Client) ensureValidToken(ctx context.Context) error {
	c.tokenMu.Lock()
	if c.token.AccessToken == "" {
		c.tokenMu.Unlock()
		return &AuthError{Op: "request", Err: ErrNotAuthenticated}
	}
	if c.token.Expiry.IsZero() || c.now().Before(c.token.Expiry.Add(-refreshMargin)) {
		c.tokenMu.Unlock()
		return nil
	}
	t, err := c.refreshLocked(ctx)
	c.tokenMu.Unlock()
	if err != nil {
		return err
	}
	c.notifyToken(t)
	return nil
}

func (c *Client) refreshLocked(ctx context.Context) (Token, error) {
	if c.token.RefreshToken == "" {
		return Token{}, &AuthError{Op: "refresh", Err: ErrNoRefreshToken}
	}
	src := c.oauth.TokenSource(c.oauthContext(ctx), &oauth2.Token{RefreshToken: c.token.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		c.log.ErrorContext(ctx, "token refresh failed", slog.Any("error", err))
		return Token{}, &AuthError{Op: "refresh", Err: err}
	}
	c.log.DebugContext(ctx, "access token refreshed")
	return c.applyToken(tok), nil
}

// applyToken stores tok, keeping the previous refresh token when none was issued.
func (c *Client) applyToken(tok *oauth2.Token) Token {
	next := Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = c.token.RefreshToken
	}
	if next.Expiry.IsZero() {
		next.Expiry = c.now().Add(defaultTokenLifetime)
	}
	c.token = next
	return next
}

func (c *Client) notifyToken(t Token) {
	if c.cfg.OnTokenRefresh != nil {
		c.cfg.OnTokenRefresh(t)
	}
}
