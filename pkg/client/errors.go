package client

import "errors"

var (
	// ErrDaemonNotRunning is returned when the daemon socket does not exist
	ErrDaemonNotRunning = errors.New("daemon not running")

	// ErrPermissionDenied is returned when the daemon socket is not accessible to the user
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnknownDevice is returned when the daemon has no curtain by the requested name
	ErrUnknownDevice = errors.New("unknown device")

	// ErrInvalidTarget is returned when the daemon rejects a target position
	ErrInvalidTarget = errors.New("invalid target")
)
