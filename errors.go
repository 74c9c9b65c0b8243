package cuke

import "errors"

// Sentinel errors.
var (
	// ErrConfigNotFound is returned when no .cuke.yaml is found.
	ErrConfigNotFound = errors.New("cuke: no .cuke.yaml found")

	// ErrUnknownFormat is returned when an unknown output format is requested.
	ErrUnknownFormat = errors.New("cuke: unknown output format")
)
