package service

import "errors"

// Error taxonomy of the tracking core. Handlers translate these to HTTP
// statuses; everything else degrades locally.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrPrecondition        = errors.New("precondition failed")
	ErrExternalUnavailable = errors.New("external platform unavailable")
)
