package errors

import (
	"errors"
	"fmt"
)

// Common error types for the OAuth installation service
var (
	// Exchange errors
	ErrInvalidRequest    = errors.New("invalid request")
	ErrUpstreamExchange  = errors.New("upstream exchange failed")
	ErrMissingLocationID = errors.New("missing location id")
	ErrPersistence       = errors.New("persistence failure")

	// Installation errors
	ErrInstallationNotFound = errors.New("installation not found")
	ErrInstallationRevoked  = errors.New("installation revoked")
	ErrInvalidTransition    = errors.New("invalid status transition")

	// Token errors
	ErrTokenNotFound         = errors.New("token not found")
	ErrTokenExpiredNoRefresh = errors.New("token expired and no refresh token available")
	ErrRefreshFailed         = errors.New("token refresh failed")

	// Session errors
	ErrInvalidCredential = errors.New("invalid session credential")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
