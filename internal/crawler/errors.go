package crawler

import (
	"errors"
	"fmt"
)

// Kind classifies the fatal error families a crawl run can end with.
type Kind string

// Error kinds, in the order they can occur during a run.
const (
	KindConfiguration Kind = "configuration"
	KindConnectivity  Kind = "connectivity"
	KindFetch         Kind = "fetch"
	KindWrite         Kind = "write"
)

// Error carries an error kind alongside its cause. All kinds are
// fatal: the first Error produced terminates the run.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ConfigurationError reports a required setting that is absent.
func ConfigurationError(format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Err: fmt.Errorf(format, args...)}
}

// ConnectivityError reports a preflight timeout or transport failure.
func ConnectivityError(err error) error {
	return &Error{Kind: KindConnectivity, Err: err}
}

// FetchError reports a queued request that failed at the transport or
// protocol layer.
func FetchError(rawURL string, err error) error {
	return &Error{Kind: KindFetch, Err: fmt.Errorf("fetch %s: %w", rawURL, err)}
}

// WriteError reports a sink failure creating its directory or
// appending a row.
func WriteError(err error) error {
	return &Error{Kind: KindWrite, Err: err}
}

// KindOf extracts the Kind from err, if err carries one.
func KindOf(err error) (Kind, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
