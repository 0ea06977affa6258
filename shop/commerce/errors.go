package commerce

import "fmt"

// AuthError reports a failed token acquisition. The current event is aborted
// and the chat state is left unchanged.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("commerce auth failed: status %d", e.Status)
	}
	return fmt.Sprintf("commerce auth failed: status %d: %s", e.Status, e.Detail)
}

// Code identifies the error class in handler summary logs.
func (e *AuthError) Code() string { return "AUTH_ERROR" }

// UpstreamError reports a non-2xx response from a catalog, cart, file or
// customer endpoint.
type UpstreamError struct {
	Op     string
	Status int
	Detail string
}

func (e *UpstreamError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("commerce %s failed: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("commerce %s failed: status %d: %s", e.Op, e.Status, e.Detail)
}

// Code identifies the error class in handler summary logs.
func (e *UpstreamError) Code() string { return "UPSTREAM_ERROR" }

// NotFoundError reports a missing upstream resource, e.g. an image file id
// that is no longer served.
type NotFoundError struct {
	Op string
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("commerce %s: %s not found", e.Op, e.ID)
}

// Code identifies the error class in handler summary logs.
func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// ValidationError reports user-supplied data rejected by validation, e.g. a
// malformed checkout email. It is a dialogue answer, not an operational error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Code identifies the error class in handler summary logs.
func (e *ValidationError) Code() string { return "VALIDATION_ERROR" }
