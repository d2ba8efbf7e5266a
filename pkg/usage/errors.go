package usage

import "errors"

var (
	ErrInvalidTenant      = errors.New("usage: tenant id is required")
	ErrInvalidQuantity    = errors.New("usage: quantity must be positive")
	ErrZeroCorrection     = errors.New("usage: correction quantity cannot be zero")
	ErrInvalidWindow      = errors.New("usage: window end must be after start")
	ErrSnapshotExists     = errors.New("usage: snapshot already exists for this period")
	ErrIncompletePricing  = errors.New("usage: pricing must cover every resource")
	ErrInvalidPricing     = errors.New("usage: invalid pricing rate")
	ErrFailedToAggregate  = errors.New("usage: failed to aggregate usage")
	ErrFailedToSave       = errors.New("usage: failed to save snapshot")
	ErrFailedToListTenant = errors.New("usage: failed to list active tenants")
)
