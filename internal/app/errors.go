package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyRunning = errors.New("scheduler already running")
	ErrPassPanicked   = errors.New("aggregation pass panicked")
)
