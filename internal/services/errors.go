package services

import (
	"errors"
	"fmt"

	"github.com/scanwork/scanwork/internal/transport"
)

// Standard service errors.
var (
	// Transport failures, mapped from the transport layer per attempt.
	ErrTimeout            = errors.New("operation timed out")
	ErrNetworkUnavailable = errors.New("network unavailable")

	// Local precondition failures: fail fast, zero network calls.
	ErrNoSession         = errors.New("no session bearer")
	ErrInvalidScanFormat = errors.New("unrecognized code format")
	ErrInvalidInput      = errors.New("invalid input provided")

	// ErrDocumentNotFound: a list-level scan resolved to neither a document
	// form nor a selected id.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrMalformedResponse: 2xx body that fails to decode into the shape its
	// classification promised. State is left untouched.
	ErrMalformedResponse = errors.New("malformed server response")

	// ErrHTTPStatus: non-2xx status with no recognizable server payload.
	ErrHTTPStatus = errors.New("unexpected HTTP status")
)

// ServerError is a MessageType:"error" response. ForcedLogout is set when the
// error named the login form and the session has already been invalidated.
type ServerError struct {
	Message      string
	ForcedLogout bool
}

func (e *ServerError) Error() string { return e.Message }

// IsLocalPreconditionError reports whether err failed before any network
// attempt.
func IsLocalPreconditionError(err error) bool {
	return errors.Is(err, ErrNoSession) ||
		errors.Is(err, ErrInvalidScanFormat) ||
		errors.Is(err, ErrInvalidInput)
}

// IsServerError reports whether err carries a server-declared error message.
func IsServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// mapTransportError lifts transport failure kinds onto the service sentinels
// so callers can use errors.Is without importing transport.
func mapTransportError(err error) error {
	var terr *transport.Error
	if !errors.As(err, &terr) {
		return err
	}
	switch terr.Kind {
	case transport.FailureTimeout:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case transport.FailureUnreachable:
		return fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	default:
		return err
	}
}
