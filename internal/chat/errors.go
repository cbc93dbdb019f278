package chat

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrClientInput marks malformed client input (missing or empty message
// list). Turns failing with it never start a stream and never touch the
// store.
var ErrClientInput = errors.New("invalid chat request")

// clientInputError wraps ErrClientInput with detail.
func clientInputError(detail string) error {
	return fmt.Errorf("%w: %s", ErrClientInput, detail)
}

// UnknownToolError reports a model-requested tool absent from the registry.
// It terminates the turn; no further model calls are made.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool %q", e.Name)
}

// UpstreamModelError reports a model endpoint failure. Status carries the
// upstream HTTP status when one was available; otherwise it maps to a
// generic failure status.
type UpstreamModelError struct {
	Status int
	Err    error
}

func (e *UpstreamModelError) Error() string {
	return fmt.Sprintf("model endpoint failure (status %d): %v", e.HTTPStatus(), e.Err)
}

func (e *UpstreamModelError) Unwrap() error { return e.Err }

// HTTPStatus returns the upstream status, or 500 when it is unusable.
func (e *UpstreamModelError) HTTPStatus() int {
	if e.Status < 400 || e.Status > 599 {
		return http.StatusInternalServerError
	}
	return e.Status
}
