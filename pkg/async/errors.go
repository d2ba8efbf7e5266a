package async

import "errors"

var (
	ErrTimeout = errors.New("async: timed out waiting for background tasks")
	ErrPanic   = errors.New("async: task panicked")
)
