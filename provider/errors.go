package provider

import (
	"errors"
	"fmt"
	"net"
)

// UpstreamError is a non-2xx response from the platform's OAuth endpoints.
// Code and Description carry the provider's raw error fields so callers can
// surface them verbatim.
type UpstreamError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("upstream returned %d: %s (%s)", e.StatusCode, e.Code, e.Description)
	}
	return fmt.Sprintf("upstream returned %d", e.StatusCode)
}

// IsInvalidGrant reports whether the provider permanently rejected the
// grant. This is the only upstream condition that justifies revoking an
// installation; everything else is retried.
func (e *UpstreamError) IsInvalidGrant() bool {
	return e.Code == "invalid_grant"
}

// Transient reports whether the failure is worth retrying on a later
// sweep: server-side errors and rate limiting, but not 4xx rejections.
func (e *UpstreamError) Transient() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsInvalidGrant reports whether any error in the chain is an upstream
// invalid_grant rejection.
func IsInvalidGrant(err error) bool {
	var upstreamErr *UpstreamError
	return errors.As(err, &upstreamErr) && upstreamErr.IsInvalidGrant()
}

// IsTransient reports whether the error is a temporary condition (timeout,
// connection failure, upstream 5xx) rather than a definitive rejection.
func IsTransient(err error) bool {
	var upstreamErr *UpstreamError
	if errors.As(err, &upstreamErr) {
		return upstreamErr.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
