package goqlio

import (
	"errors"
)

// Common errors for client operations. Errors raised by the files
// themselves are *chunk.Error values.
var (
	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")

	// Format errors
	ErrUnknownFormat = errors.New("unknown file format")
)
