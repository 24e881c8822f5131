package repository

import (
	"errors"
	"fmt"
)

// Sentinel kinds for store errors.
var (
	ErrNotFound  = errors.New("not found")
	ErrTransient = errors.New("transient store error")
)

// Transient wraps a driver error so callers can match ErrTransient and the
// original error.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrTransient, op, err)
}
