package store

import "errors"

// ErrNotFound indicates a missing identity or mark lookup.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateLabel indicates an identity create lost a race with another
// create using the same label. Callers should re-read by label.
var ErrDuplicateLabel = errors.New("label already taken")

// ErrUnavailable indicates the backing database could not be reached. The
// operation did not happen and may be retried.
var ErrUnavailable = errors.New("store unavailable")
