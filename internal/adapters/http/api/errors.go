package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrMissingRouteID = errors.New("missing route id")
)
