package beatsync

import "errors"

var (
	ErrNotStarted = errors.New("beatsync: session not started")
	ErrClosed     = errors.New("beatsync: session closed")
)
