package metering

import "errors"

var (
	ErrUnknownResource = errors.New("metering: unknown resource")
	ErrUnknownPeriod   = errors.New("metering: unknown period")
	ErrNegativeLimit   = errors.New("metering: limit cannot be negative")
	ErrInvalidLimit    = errors.New("metering: invalid limit value")
)
