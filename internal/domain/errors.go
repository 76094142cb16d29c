package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConnectionClosed = errors.New("connection already closed")
)
