package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Agrid-Dev/tadox/internal/tado"
)

const (
	// FreeTierQuota is the daily request quota without an Auto-Assist subscription.
	FreeTierQuota = 100
	// PremiumQuota is the daily request quota with Auto-Assist.
	PremiumQuota = 20000

	headerRateLimitPolicy = "Ratelimit-Policy"
	headerRateLimit       = "Ratelimit"
	fallbackLimitWindow   = time.Hour
)

// Stats is the client's view of the daily request budget.
type Stats = tado.APIStats

type budget struct {
	callsToday     int
	resetTime      time.Time
	hasAutoAssist  bool
	quotaLimit     *int
	quotaRemaining *int
	limitReset     time.Time // vendor window end, zero when unknown
}

// count records one request sent at now, rolling the counter over at the reset time.
func (b *budget) count(now time.Time) {
	if !now.Before(b.resetTime) {
		b.callsToday = 0
		b.resetTime = nextMidnight(now)
	}
	b.callsToday++
}

// observe applies the rate-limit headers of a response.
func (b *budget) observe(h http.Header, now time.Time) {
	if q, ok := rateLimitParam(h.Get(headerRateLimitPolicy), "q"); ok {
		b.quotaLimit = &q
		b.hasAutoAssist = q > FreeTierQuota
	}
	if r, ok := rateLimitParam(h.Get(headerRateLimit), "r"); ok {
		b.quotaRemaining = &r
	}
	if t, ok := rateLimitParam(h.Get(headerRateLimit), "t"); ok {
		b.limitReset = now.Add(time.Duration(t) * time.Second)
		b.resetTime = b.limitReset
	}
}

// exhausted reports whether the vendor said no quota is left and the window is still open.
func (b *budget) exhausted(now time.Time) (time.Time, bool) {
	if b.quotaRemaining == nil || *b.quotaRemaining > 0 {
		return time.Time{}, false
	}
	if b.limitReset.IsZero() || !now.Before(b.limitReset) {
		return time.Time{}, false
	}
	return b.limitReset, true
}

// throttled marks the budget as exhausted after a 429 and returns the reset time.
func (b *budget) throttled(h http.Header, now time.Time) time.Time {
	reset := now.Add(fallbackLimitWindow)
	retryAfter, hasRetryAfter := parseRetryAfter(h.Get("Retry-After"), now)
	switch {
	case hasRetryAfter:
		reset = now.Add(retryAfter)
	case !b.limitReset.IsZero() && b.limitReset.After(now):
		reset = b.limitReset
	case b.resetTime.After(now):
		reset = b.resetTime
	}
	zero := 0
	b.quotaRemaining = &zero
	b.limitReset = reset
	return reset
}

func (b *budget) stats() Stats {
	s := Stats{
		CallsToday:    b.callsToday,
		ResetTime:     b.resetTime,
		HasAutoAssist: b.hasAutoAssist,
	}
	if b.quotaLimit != nil {
		v := *b.quotaLimit
		s.QuotaLimit = &v
	}
	if b.quotaRemaining != nil {
		v := *b.quotaRemaining
		s.QuotaRemaining = &v
	}
	return s
}

// rateLimitParam extracts an integer parameter from a structured rate-limit
// header such as `"perday";q=100;w=86400`. The first occurrence wins.
func rateLimitParam(header, key string) (int, bool) {
	if header == "" {
		return 0, false
	}
	for _, item := range strings.Split(header, ",") {
		for _, part := range strings.Split(item, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), key) {
				continue
			}
			n, err := strconv.Atoi(strings.Trim(strings.TrimSpace(v), `"`))
			if err != nil {
				return 0, false
			}
			return n, true
		}
	}
	return 0, false
}

func parseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now), true
	}
	return 0, false
}

func nextMidnight(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
}
