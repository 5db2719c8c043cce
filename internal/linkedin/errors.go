package linkedin

import (
	"errors"
	"fmt"
)

// ErrStateMismatch is returned when the callback state does not equal the
// current nonce. No HTTP call is made and the token store is not touched.
var ErrStateMismatch = errors.New("could not handle LinkedIn authentication: state code did not match")

// ErrNotLinked is returned by TokenSource when no access token is stored
var ErrNotLinked = errors.New("no LinkedIn account is linked")

// UpstreamError carries the error_description LinkedIn sent back on the
// redirect, e.g. when the user denied access.
type UpstreamError struct {
	Message string
}

func (e *UpstreamError) Error() string {
	return e.Message
}

// TransportError wraps a failure of the HTTP client itself
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// UpstreamStatusError is returned when the token endpoint answers with a
// status other than 200.
type UpstreamStatusError struct {
	StatusCode  int
	Description string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf(`authentication server responded with code "%d": %s`, e.StatusCode, e.Description)
}

// MalformedResponseError is returned when a 200 response is not JSON or
// lacks access_token or expires_in.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	if e.Err == nil {
		return "authentication server responded with unexpected format"
	}
	return "authentication server responded with unexpected format: " + e.Err.Error()
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
