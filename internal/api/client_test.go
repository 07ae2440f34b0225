package api

import (
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDo_SendsBearerAndCountsCalls(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": 1, "name": "Living"}})
	})
	c := newTestClient(t, v)

	rooms, err := c.GetRooms(t.Context())
	if err != nil {
		t.Fatalf("GetRooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != "Living" {
		t.Fatalf("rooms=%+v", rooms)
	}

	req := v.last()
	if req.Auth != "Bearer access" {
		t.Fatalf("authorization=%q", req.Auth)
	}
	if req.Path != "/hops/homes/42/rooms" {
		t.Fatalf("path=%q", req.Path)
	}
	if got := c.Stats().CallsToday; got != 1 {
		t.Fatalf("calls today=%d want 1", got)
	}
}

func TestDo_CountsSentRequestWithoutResponse(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Errorf("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err != nil {
			t.Errorf("hijack: %v", err)
			return
		}
		_ = conn.Close()
	})
	c := newTestClient(t, v)

	_, err := c.GetRooms(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 0 {
		t.Fatalf("expected network APIError, got %v", err)
	}
	if got := c.Stats().CallsToday; got != 1 {
		t.Fatalf("calls today=%d want 1", got)
	}
}

func TestDo_RefusedConnectionIsNotCounted(t *testing.T) {
	v := newVendor(t, nil)
	c := newTestClient(t, v)
	v.srv.Close()

	if _, err := c.GetRooms(t.Context()); err == nil {
		t.Fatalf("expected an error from a closed server")
	}
	if got := c.Stats().CallsToday; got != 0 {
		t.Fatalf("calls today=%d want 0", got)
	}
}

func TestDo_RefreshesAndRetriesOnceOn401(t *testing.T) {
	var roomCalls atomic.Int32
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			writeJSON(t, w, http.StatusOK, map[string]any{
				"access_token":  "fresh",
				"refresh_token": "refresh-2",
				"token_type":    "Bearer",
				"expires_in":    600,
			})
		default:
			if roomCalls.Add(1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			writeJSON(t, w, http.StatusOK, []any{})
		}
	})
	var persisted []Token
	c := newTestClient(t, v, func(cfg *Config) {
		cfg.OnTokenRefresh = func(tok Token) { persisted = append(persisted, tok) }
	})

	if _, err := c.GetRooms(t.Context()); err != nil {
		t.Fatalf("GetRooms: %v", err)
	}
	if roomCalls.Load() != 2 {
		t.Fatalf("expected 2 room calls, got %d", roomCalls.Load())
	}
	if got := v.last().Auth; got != "Bearer fresh" {
		t.Fatalf("retry authorization=%q", got)
	}
	if len(persisted) != 1 || persisted[0].RefreshToken != "refresh-2" {
		t.Fatalf("persisted=%+v", persisted)
	}
}

func TestDo_Second401IsAPIError(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			writeJSON(t, w, http.StatusOK, map[string]any{"access_token": "fresh", "expires_in": 600})
			return
		}
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	c := newTestClient(t, v)

	_, err := c.GetRooms(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected APIError 401, got %v", err)
	}
}

func TestDo_429ReturnsRateLimitError(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "90")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, v, func(cfg *Config) { cfg.Now = fixedClock(now) })

	_, err := c.GetRooms(t.Context())
	reset, ok := IsRateLimited(err)
	if !ok {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if want := now.Add(90 * time.Second); !reset.Equal(want) {
		t.Fatalf("reset=%v want %v", reset, want)
	}

	// The budget is now exhausted: the next call must not reach the vendor.
	before := len(v.requests())
	if _, err := c.GetRoomsAndDevices(t.Context()); err == nil {
		t.Fatalf("expected fail fast while throttled")
	}
	if len(v.requests()) != before {
		t.Fatalf("request sent while throttled")
	}
}

func TestDo_FailsFastWhenHeadersReportNoQuota(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Ratelimit-Policy", `"perday";q=100;w=86400`)
		w.Header().Set("Ratelimit", `"perday";r=0;t=600`)
		writeJSON(t, w, http.StatusOK, []any{})
	})
	c := newTestClient(t, v, func(cfg *Config) { cfg.Now = fixedClock(now) })

	if _, err := c.GetRooms(t.Context()); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := c.GetRooms(t.Context())
	reset, ok := IsRateLimited(err)
	if !ok || !reset.Equal(now.Add(10*time.Minute)) {
		t.Fatalf("expected rate limit until +10m, got %v", err)
	}
	if n := len(v.requests()); n != 1 {
		t.Fatalf("requests=%d want 1", n)
	}

	s := c.Stats()
	if s.HasAutoAssist || s.QuotaLimit == nil || *s.QuotaLimit != 100 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestDo_ErrorStatusCarriesBody(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	c := newTestClient(t, v)

	err := c.ResumeSchedule(t.Context(), 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Body != "boom" {
		t.Fatalf("apiErr=%+v", apiErr)
	}
	if IsAuthError(err) {
		t.Fatalf("server error is not an auth error")
	}
}

func TestDo_InvalidJSONIsAPIError(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{not json"))
	})
	c := newTestClient(t, v)

	_, err := c.GetHomeState(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Err == nil {
		t.Fatalf("expected decode APIError, got %v", err)
	}
}

func TestDo_NetworkErrorHasNoStatus(t *testing.T) {
	v := newVendor(t, nil)
	c := newTestClient(t, v)
	v.srv.Close()

	_, err := c.GetRooms(t.Context())
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 0 {
		t.Fatalf("expected network APIError, got %v", err)
	}
	if !strings.Contains(err.Error(), "network error") {
		t.Fatalf("error=%q", err)
	}
}

func TestDo_RequiresToken(t *testing.T) {
	v := newVendor(t, nil)
	c := New(v.config())
	c.SetHomeID(testHomeID)

	_, err := c.GetRooms(t.Context())
	if !IsAuthError(err) || !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if len(v.requests()) != 0 {
		t.Fatalf("no request expected")
	}
}

func TestHomeScopedCallsNeedHomeID(t *testing.T) {
	v := newVendor(t, nil)
	c := newTestClient(t, v)
	c.SetHomeID(0)

	if _, err := c.GetRooms(t.Context()); !errors.Is(err, ErrHomeNotSet) {
		t.Fatalf("expected ErrHomeNotSet, got %v", err)
	}
	if err := c.BoostAllHeating(t.Context()); !errors.Is(err, ErrHomeNotSet) {
		t.Fatalf("expected ErrHomeNotSet, got %v", err)
	}
}

func TestRestoreStats(t *testing.T) {
	v := newVendor(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"presence": "HOME"})
	})
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.Local)
	c := newTestClient(t, v, func(cfg *Config) { cfg.Now = fixedClock(now) })
	c.RestoreStats(40, now.Add(time.Hour), true)

	if _, err := c.GetHomeState(t.Context()); err != nil {
		t.Fatalf("GetHomeState: %v", err)
	}
	s := c.Stats()
	if s.CallsToday != 41 || !s.HasAutoAssist {
		t.Fatalf("stats=%+v", s)
	}
}
