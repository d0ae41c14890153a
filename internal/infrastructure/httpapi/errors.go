package httpapi

import (
	"errors"
	"fmt"
)

// Error taxonomy for calls against the remote API. Callers branch on these
// with errors.As; the concrete types carry whatever the server said.

// NetworkError wraps a transport failure: the request never produced a
// response. These are the only errors the client will retry.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("httpapi: network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthError reports a 401: the token is missing, expired, or revoked.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "httpapi: unauthorized"
	}
	return "httpapi: unauthorized: " + e.Message
}

// ValidationError reports a 4xx rejection of the request payload
// (bad credentials, malformed OTP, missing fields). Message is the
// user-facing text from the server when one was provided.
type ValidationError struct {
	Status  int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("httpapi: request rejected with status %d", e.Status)
	}
	return "httpapi: " + e.Message
}

// NotFoundError reports a 404 for the requested path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return "httpapi: not found: " + e.Path }

// APIError covers everything else the server can return (5xx and any
// status the taxonomy above does not claim).
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("httpapi: server returned status %d", e.Status)
	}
	return fmt.Sprintf("httpapi: status %d: %s", e.Status, e.Message)
}

// IsNetwork reports whether err is (or wraps) a NetworkError.
func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err is (or wraps) an AuthError.
func IsUnauthorized(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
