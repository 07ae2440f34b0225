package api

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrNoRefreshToken    = errors.New("no refresh token available")
	ErrHomeNotSet        = errors.New("home id not set")
	ErrDeviceAuthTimeout = errors.New("device authorization timed out")
)

// AuthError means the credentials are unusable and the user must log in again.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a failed vendor request. StatusCode is zero for transport failures.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("api: network error: %v", e.Err)
	}
	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error { return e.Err }

// RateLimitError is returned on HTTP 429 and while the daily quota is exhausted.
type RateLimitError struct {
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("api: rate limited until %s", e.Reset.Format(time.RFC3339))
}

func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

func IsRateLimited(err error) (time.Time, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Reset, true
	}
	return time.Time{}, false
}
