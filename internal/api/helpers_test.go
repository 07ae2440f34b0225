package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const testHomeID = 42

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

// vendor is a fake of the vendor cloud. Every request is recorded and then
// handed to handle.
type vendor struct {
	t      *testing.T
	srv    *httptest.Server
	handle http.HandlerFunc

	mu   sync.Mutex
	reqs []recorded
}

func newVendor(t *testing.T, handle http.HandlerFunc) *vendor {
	t.Helper()
	v := &vendor{t: t, handle: handle}
	v.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		v.mu.Lock()
		v.reqs = append(v.reqs, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(b),
		})
		v.mu.Unlock()
		r.Body = io.NopCloser(strings.NewReader(string(b)))
		if v.handle != nil {
			v.handle(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *vendor) requests() []recorded {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]recorded, len(v.reqs))
	copy(out, v.reqs)
	return out
}

func (v *vendor) last() recorded {
	v.t.Helper()
	reqs := v.requests()
	if len(reqs) == 0 {
		v.t.Fatalf("no request recorded")
	}
	return reqs[len(reqs)-1]
}

func (v *vendor) config() Config {
	return Config{
		AuthURL:    v.srv.URL + "/oauth2/device_authorize",
		TokenURL:   v.srv.URL + "/oauth2/token",
		HopsURL:    v.srv.URL + "/hops",
		MyURL:      v.srv.URL + "/my",
		EIQURL:     v.srv.URL + "/eiq",
		MinderURL:  v.srv.URL + "/minder",
		HTTPClient: v.srv.Client(),
	}
}

// newTestClient returns a logged-in client for home 42.
func newTestClient(t *testing.T, v *vendor, mutate ...func(*Config)) *Client {
	t.Helper()
	cfg := v.config()
	for _, m := range mutate {
		m(&cfg)
	}
	c := New(cfg)
	c.SetToken(Token{AccessToken: "access", RefreshToken: "refresh", Expiry: c.now().Add(time.Hour)})
	c.SetHomeID(testHomeID)
	return c
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encode response: %v", err)
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
