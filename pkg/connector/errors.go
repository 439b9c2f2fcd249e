package connector

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

var (
	// ErrSessionInvalid means the server revoked the session. Nothing in the
	// client recovers from it; a new login is required.
	ErrSessionInvalid = errors.New("session invalidated by server")

	ErrTransportClosed = errors.New("transport closed")
)

// Return codes of the response envelope that are not fatal errors.
const (
	RetCodeOK             = 0
	RetCodeSessionInvalid = 103
	RetCodeNoData         = 100100
)

// TransportError is a failed HTTP exchange: a connection error or an
// unexpected status code once retries are exhausted.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("request to %s failed: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("request to %s failed: HTTP %d", e.Endpoint, e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a response that arrived but breaks the envelope contract
// or carries a fatal return code.
type ProtocolError struct {
	Endpoint string
	RetCode  int
	Reason   string
	Err      error
}

func (e *ProtocolError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Endpoint, e.Reason)
	}
	return fmt.Sprintf("%s: api returned retcode %d", e.Endpoint, e.RetCode)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a read timeout. A timed out long-poll is
// an empty result, not a failure.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
