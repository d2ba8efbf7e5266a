package quota

import "errors"

var (
	ErrNegativeIncrement      = errors.New("quota: requested increment cannot be negative")
	ErrIncompleteDefaults     = errors.New("quota: default entitlement must cover every resource")
	ErrFailedToResolvePlan    = errors.New("quota: failed to resolve active plan")
	ErrFailedToAggregateUsage = errors.New("quota: failed to aggregate usage")
)
