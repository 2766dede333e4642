package server

import (
	"errors"
	"fmt"
)

var (
	// ErrBind indicates the listen address could not be bound
	ErrBind = errors.New("bind failed")
	// ErrAlreadyStarted indicates Bind or Serve was called on a server which is already bound or serving
	ErrAlreadyStarted = errors.New("server already started")
	// ErrStopped indicates the server has been closed and cannot be restarted
	ErrStopped = errors.New("server stopped")
)

// BindError is returned when the listener cannot be created, typically
// because the port is in use or the process lacks permission. It is fatal.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBind, e.Addr, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

func (e *BindError) Is(target error) bool {
	return target == ErrBind
}
