package usage

import (
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Metadata keys set by the recorder.
const (
	MetaCorrection = "correction"
	MetaReason     = "reason"
)

// Event is one immutable usage record.
type Event struct {
	ID         uuid.UUID         `json:"id"`
	TenantID   uuid.UUID         `json:"tenant_id"`
	Resource   metering.Resource `json:"resource"`
	Quantity   decimal.Decimal   `json:"quantity"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// NewEvent creates an event with a fresh id.
func NewEvent(tenantID uuid.UUID, r metering.Resource, quantity decimal.Decimal, metadata map[string]string, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Resource:   r,
		Quantity:   quantity,
		Metadata:   maps.Clone(metadata),
		OccurredAt: at.UTC(),
	}
}

// IsCorrection reports whether the event compensates earlier usage.
func (e Event) IsCorrection() bool {
	return e.Metadata[MetaCorrection] == "true"
}

// Validate checks the event before it is appended. Negative quantities are
// only valid on corrections.
func (e Event) Validate() error {
	if e.TenantID == uuid.Nil {
		return ErrInvalidTenant
	}
	if !e.Resource.Valid() {
		return fmt.Errorf("%w: %q", metering.ErrUnknownResource, e.Resource)
	}
	if e.IsCorrection() {
		if e.Quantity.IsZero() {
			return ErrZeroCorrection
		}
		return nil
	}
	if !e.Quantity.IsPositive() {
		return ErrInvalidQuantity
	}
	return nil
}
