package store

import "errors"

// ErrDeviceNotFound is returned when no device matches the given id or token,
// checked with errors.Is.
var ErrDeviceNotFound = errors.New("store: device not found")

// HistoryFilter narrows a pin history query. A nil Pin matches all pins;
// Hours <= 0 means no time bound; Limit <= 0 falls back to a server default.
type HistoryFilter struct {
	Pin   *int
	Hours int
	Limit int
}

// defaultHistoryLimit caps unbounded history reads.
const defaultHistoryLimit = 100

// maxHistoryLimit is the hard ceiling regardless of what the caller asks for.
const maxHistoryLimit = 1000
