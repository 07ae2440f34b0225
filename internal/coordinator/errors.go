package coordinator

import "errors"

var (
	// ErrReauthRequired means the stored credentials were rejected and the
	// device flow has to be run again.
	ErrReauthRequired = errors.New("re-authentication required")
	ErrUpdateFailed   = errors.New("update failed")
)
