package storage

import "errors"

// ErrNotFound is returned when a record does not exist. Implementations wrap
// it so callers can test with errors.Is regardless of backend.
var ErrNotFound = errors.New("not found")
