package config

import "errors"

var (
	// ErrStyleNotFound is returned when a requested style is not configured.
	ErrStyleNotFound = errors.New("style not found")

	// ErrInvalidConfig is returned for configuration values that parse but
	// cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
)
