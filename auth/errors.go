package auth

import "errors"

// Sentinel errors for the authorization flow.
var (
	// ErrNotAuthorized indicates no stored credentials exist; the
	// authorization flow must be completed first.
	ErrNotAuthorized = errors.New("auth: not authorized")

	// ErrNoRefreshToken indicates the stored token cannot be refreshed and
	// the user must re-authorize.
	ErrNoRefreshToken = errors.New("auth: stored token has no refresh token")

	// ErrStateInvalid indicates the callback state parameter failed
	// verification (forged, tampered, or expired).
	ErrStateInvalid = errors.New("auth: invalid state parameter")

	// ErrCodeMissing indicates the callback carried no authorization code.
	ErrCodeMissing = errors.New("auth: authorization code missing")
)
