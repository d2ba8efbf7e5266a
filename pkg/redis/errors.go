package redis

import "errors"

var (
	ErrEmptyConnectionURL = errors.New("redis: REDIS_URL is empty")
	ErrInvalidURL         = errors.New("redis: invalid connection URL")
	ErrNotReady           = errors.New("redis: server not ready")
	ErrUnhealthy          = errors.New("redis: ping failed")
	ErrLockNotHeld        = errors.New("redis: lock is not held")
)
