package queue

import "errors"

// Sentinel kinds for enqueue errors.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
