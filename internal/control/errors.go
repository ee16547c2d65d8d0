package control

import "errors"

var (
	// ErrAlreadyRunning rejects a start for an identity (or
	// identity/link pair) that is already running. Callers must stop
	// the running instance first; starts are never queued or replaced.
	ErrAlreadyRunning = errors.New("control: already running")

	// ErrPermissionDenied rejects a start the authorization policy
	// refused. Terminal; never retried automatically.
	ErrPermissionDenied = errors.New("control: permission denied")

	// ErrClosed is returned when the controller has been shut down.
	ErrClosed = errors.New("control: controller closed")
)
