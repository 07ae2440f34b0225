package api

import (
	"errors"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func deviceAuthorizeHandler(t *testing.T, w http.ResponseWriter) {
	t.Helper()
	writeJSON(t, w, http.StatusOK, map[string]any{
		"device_code":               "dev-code",
		"user_code":                 "ABCD-1234",
		"verification_uri":          "https://login.example/device",
		"verification_uri_complete": "https://login.example/device?user_code=ABCD-1234",
		"expires_in":                300,
		"interval":                  1,
	})
}

func TestDeviceFlow(t *testing.T) {
	var polls atomic.Int32
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/device_authorize":
			deviceAuthorizeHandler(t, w)
		case "/oauth2/token":
			if polls.Add(1) == 1 {
				writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "authorization_pending"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    600,
			})
		}
	})
	var persisted Token
	c := New(func() Config {
		cfg := v.config()
		cfg.OnTokenRefresh = func(tok Token) { persisted = tok }
		return cfg
	}())

	da, err := c.StartDeviceAuth(t.Context())
	if err != nil {
		t.Fatalf("StartDeviceAuth: %v", err)
	}
	if da.UserCode != "ABCD-1234" || da.VerificationURIComplete == "" || da.Interval != time.Second {
		t.Fatalf("device auth=%+v", da)
	}

	authReq := v.requests()[0]
	form, _ := url.ParseQuery(authReq.Body)
	if form.Get("client_id") != DefaultClientID || form.Get("scope") != "offline_access" {
		t.Fatalf("device authorize form=%v", form)
	}

	if err := c.PollForToken(t.Context(), da, 10*time.Second); err != nil {
		t.Fatalf("PollForToken: %v", err)
	}
	if polls.Load() != 2 {
		t.Fatalf("polls=%d want 2", polls.Load())
	}
	tok := c.Token()
	if tok.AccessToken != "access-1" || tok.RefreshToken != "refresh-1" || tok.Expiry.IsZero() {
		t.Fatalf("token=%+v", tok)
	}
	if persisted.AccessToken != "access-1" {
		t.Fatalf("OnTokenRefresh not called with new token: %+v", persisted)
	}
}

func TestPollForToken_TimesOut(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "authorization_pending"})
	})
	c := New(v.config())

	da := DeviceAuth{DeviceCode: "dev-code", Interval: time.Second, Expiry: time.Now().Add(time.Minute)}
	err := c.PollForToken(t.Context(), da, 1500*time.Millisecond)
	if !errors.Is(err, ErrDeviceAuthTimeout) {
		t.Fatalf("expected ErrDeviceAuthTimeout, got %v", err)
	}
}

func TestPollForToken_DeniedIsAuthError(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "access_denied"})
	})
	c := New(v.config())

	da := DeviceAuth{DeviceCode: "dev-code", Interval: time.Second}
	err := c.PollForToken(t.Context(), da, 10*time.Second)
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestEnsureValidToken_RefreshesBeforeExpiry(t *testing.T) {
	now := time.Now()
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			writeJSON(t, w, http.StatusOK, map[string]any{"access_token": "fresh", "token_type": "Bearer"})
			return
		}
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})
	c := newTestClient(t, v, func(cfg *Config) { cfg.Now = fixedClock(now) })
	c.SetToken(Token{AccessToken: "stale", RefreshToken: "refresh", Expiry: now.Add(30 * time.Second)})

	if _, err := c.GetHomeState(t.Context()); err != nil {
		t.Fatalf("GetHomeState: %v", err)
	}

	reqs := v.requests()
	if len(reqs) != 2 || reqs[0].Path != "/oauth2/token" {
		t.Fatalf("expected refresh before request, got %+v", reqs)
	}
	form, _ := url.ParseQuery(reqs[0].Body)
	if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh" {
		t.Fatalf("refresh form=%v", form)
	}
	if reqs[1].Auth != "Bearer fresh" {
		t.Fatalf("authorization=%q", reqs[1].Auth)
	}

	tok := c.Token()
	if tok.RefreshToken != "refresh" {
		t.Fatalf("refresh token must be kept when none is issued, got %q", tok.RefreshToken)
	}
	if want := now.Add(defaultTokenLifetime); !tok.Expiry.Equal(want) {
		t.Fatalf("expiry=%v want %v", tok.Expiry, want)
	}
}

func TestEnsureValidToken_NoRefreshWhenFresh(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{})
	})
	c := newTestClient(t, v)

	if _, err := c.GetHomeState(t.Context()); err != nil {
		t.Fatalf("GetHomeState: %v", err)
	}
	if n := len(v.requests()); n != 1 {
		t.Fatalf("requests=%d want 1", n)
	}
}

func TestRefreshAccessToken_NoRefreshToken(t *testing.T) {
	v := newVendor(t, nil)
	c := New(v.config())
	c.SetToken(Token{AccessToken: "a"})

	err := c.RefreshAccessToken(t.Context())
	if !errors.Is(err, ErrNoRefreshToken) || !IsAuthError(err) {
		t.Fatalf("expected ErrNoRefreshToken, got %v", err)
	}
}

func TestRefreshAccessToken_Rejected(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	})
	c := newTestClient(t, v)

	err := c.RefreshAccessToken(t.Context())
	if !IsAuthError(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if c.Token().AccessToken != "access" {
		t.Fatalf("failed refresh must keep the old token")
	}
}
