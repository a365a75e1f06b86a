package relayws

import (
	"fmt"
	"net/url"

	"github.com/pkg/errors"
)

var (
	ErrMissingToken     = errors.New("user token is required")
	ErrMissingServer    = errors.New("ws server is required")
	ErrBusy             = errors.New("connection already in progress")
	ErrNotOpen          = errors.New("connection is not open")
	ErrClosed           = errors.New("manager has been closed")
	ErrConnectionClosed = errors.New("connection has been closed")
	ErrCannotConnect    = errors.New("connection cannot be established")
	ErrTerminated       = errors.New("program exit")
	ErrRateLimit        = errors.New("rate limit exceeded")
)

// Rejection is delivered to the message handler when the server refuses the session
// with a close code in the 4xx range.
type Rejection struct {
	ErrorCode int    `json:"errorCode"`
	Reason    string `json:"reason"`
}

func (r Rejection) Error() string {
	return fmt.Sprintf("session rejected with code %d: %s", r.ErrorCode, r.Reason)
}

type ErrUnrecoverableConnection struct {
	err error
	url url.URL
}

func (e ErrUnrecoverableConnection) Error() string {
	return fmt.Sprintf("Unrecoverable connection error: %s to %s", e.err, e.url.String())
}

func (e ErrUnrecoverableConnection) Unwrap() error { return e.err }

func WrapErrorUnrecoverableConnection(err error, url url.URL) *ErrUnrecoverableConnection {
	if err == nil {
		return nil
	}
	return &ErrUnrecoverableConnection{
		err: err,
		url: url,
	}
}

// isRejectionCode reports whether a clean close code means the server refused the session.
func isRejectionCode(code int) bool {
	return code > 400 && code < 500
}

var (
	errUnsupportedScheme = errors.New("unsupported scheme, want ws, wss, http or https")
	errMissingHost       = errors.New("missing host")
)
