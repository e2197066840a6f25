package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AdapterError wraps provider errors with status metadata.
type AdapterError struct {
	Adapter   string
	Status    int
	Temporary bool
	Err       error
}

func (e *AdapterError) Error() string {
	if e == nil {
		return "adapter error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Adapter, e.Err)
	}
	return fmt.Sprintf("%s: adapter error (status=%d)", e.Adapter, e.Status)
}

func (e *AdapterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// wrapErr tags a provider error with the adapter name.
func wrapErr(name string, err error) error {
	if err == nil {
		return nil
	}
	return &AdapterError{Adapter: name, Err: err}
}

// IsTransient reports whether an error is safe to retry. Context
// cancellation is never transient: the caller asked us to stop.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		if adapterErr.Temporary {
			return true
		}
		if adapterErr.Status == 429 || (adapterErr.Status >= 500 && adapterErr.Status <= 599) {
			return true
		}
	}
	return false
}
