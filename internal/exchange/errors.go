package exchange

import "errors"

// ErrUnsupported is returned by optional Adapter methods the
// implementation doesn't provide.
var ErrUnsupported = errors.New("exchange: unsupported feature")

// ErrNotConnected is returned by any order/data method called before a
// successful Connect.
var ErrNotConnected = errors.New("exchange: not connected")

// ConnectionError wraps a transport-level failure. Per spec §4.3 it is
// the caller's responsibility to retry; it is distinct from an
// exchange-reported order rejection.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string { return "exchange: connection failure: " + e.Cause.Error() }
func (e *ConnectionError) Unwrap() error { return e.Cause }

// AccountInactiveError is a non-retryable connection failure.
type AccountInactiveError struct {
	Reason string
}

func (e *AccountInactiveError) Error() string { return "exchange: account inactive: " + e.Reason }
