package utils

import "errors"

// Error taxonomy shared by the core packages. Handlers translate these into
// HTTP status codes; anything not wrapping one of them is reported as a 500.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrNoData       = errors.New("no data")
)
