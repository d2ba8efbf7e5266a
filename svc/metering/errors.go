package metering

import "errors"

var (
	ErrMissingUsageStore   = errors.New("metering: usage store is required")
	ErrMissingBillingStore = errors.New("metering: billing store is required")
	ErrMissingPlanSource   = errors.New("metering: plan source is required")
	ErrFailedToInit        = errors.New("metering: failed to initialize service")
)
