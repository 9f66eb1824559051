package models

import (
	"errors"
	"fmt"
)

// LoginPath is where clients are sent to (re)authenticate.
const LoginPath = "/api/oauth/login"

var (
	ErrNotAuthenticated = errors.New("no OAuth tokens stored. Please login first at " + LoginPath)
	ErrStoreUnavailable = errors.New("database not configured")
)

// RefreshFailedError is returned when the identity provider rejects a
// refresh-token exchange.
type RefreshFailedError struct {
	Message string
}

func (e *RefreshFailedError) Error() string {
	return "failed to refresh token: " + e.Message
}

// UpstreamError carries a non-zero code (or non-2xx status) from a Lark API.
// Body holds the raw upstream payload for debugging.
type UpstreamError struct {
	Status int
	Code   int
	Msg    string
	Body   []byte
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error %d: %s", e.Code, e.Msg)
}

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Missing " + e.Field + " parameter"
}
