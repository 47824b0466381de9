package service

import (
	"errors"
	"fmt"
)

// ErrAlreadyRunning is returned by Start when the service is Running.
var ErrAlreadyRunning = errors.New("service is already running")

// BusyError rejects a lifecycle command issued while another transition is
// in progress. Commands are rejected rather than queued so the caller (the
// tray UI) can tell the user what happened.
type BusyError struct {
	Command string
	State   State
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	return fmt.Sprintf("cannot %s while service is %s", e.Command, e.State)
}

// PortInUseError reports a failed bind during Starting. It drives the
// service to Failed and needs user correction before a retry can succeed.
type PortInUseError struct {
	Port  int
	Cause error
}

// Error implements the error interface.
func (e *PortInUseError) Error() string {
	return fmt.Sprintf("port %d is already in use: %v", e.Port, e.Cause)
}

// Unwrap returns the underlying error for error chain support.
func (e *PortInUseError) Unwrap() error {
	return e.Cause
}
