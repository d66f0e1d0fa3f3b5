package render

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	ErrNavigationTimeout = errors.New("navigation timeout exceeded")
	ErrDisallowed        = errors.New("disallowed by robots.txt")
	ErrUnknownEngine     = errors.New("unknown rendering engine")
	ErrSessionClosed     = errors.New("render session closed")
	ErrManagerClosed     = errors.New("render manager closed")
)

// NavigationError is returned for any failure to get a rendered page:
// browser start-up, transport or driver faults, timeouts and robots
// refusals.
type NavigationError struct {
	Engine Engine
	URL    string
	Err    error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation error (%s) %s: %v", e.Engine, e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error {
	return e.Err
}

// Kind classifies the failure for metrics and logs.
func (e *NavigationError) Kind() string {
	switch {
	case errors.Is(e.Err, ErrNavigationTimeout):
		return "timeout"
	case errors.Is(e.Err, ErrDisallowed):
		return "robots"
	case errors.Is(e.Err, context.Canceled):
		return "canceled"
	default:
		return "driver"
	}
}

func IsNavigationError(err error) bool {
	var navErr *NavigationError
	return errors.As(err, &navErr)
}

func navigationError(engine Engine, url string, err error) error {
	if err == nil {
		return nil
	}
	var navErr *NavigationError
	if errors.As(err, &navErr) {
		return err
	}
	return &NavigationError{Engine: engine, URL: url, Err: err}
}

// timeoutError maps deadline and net timeouts onto ErrNavigationTimeout so
// every engine reports them the same way.
func timeoutError(err error) error {
	if err == nil || errors.Is(err, ErrNavigationTimeout) {
		return err
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
	}
	return err
}
