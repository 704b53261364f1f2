package repository

import "errors"

// Sentinel errors for storage facts. Callers translate them into domain
// errors; they never reach API clients directly.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)
