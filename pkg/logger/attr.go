package logger

import (
	"log/slog"
	"time"
)

// Attribute keys shared by every meterkit component.
const (
	KeyError          = "error"
	KeyTenantID       = "tenant_id"
	KeySubscriptionID = "subscription_id"
	KeyPlanID         = "plan_id"
	KeyResource       = "resource"
	KeyStatus         = "status"
	KeyTransactionID  = "transaction_id"
	KeyRequestID      = "request_id"
	KeyDuration       = "duration"
	KeyComponent      = "component"
)

// Error is empty for a nil err, so it can be passed unconditionally.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// TenantID accepts a uuid.UUID or its string form. Nil yields an empty Attr.
func TenantID(id any) slog.Attr {
	return optional(KeyTenantID, id)
}

func SubscriptionID(id any) slog.Attr {
	return optional(KeySubscriptionID, id)
}

func RequestID(id any) slog.Attr {
	return optional(KeyRequestID, id)
}

func PlanID(id string) slog.Attr { return slog.String(KeyPlanID, id) }

func Resource(name string) slog.Attr { return slog.String(KeyResource, name) }

func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }

func TransactionID(id string) slog.Attr { return slog.String(KeyTransactionID, id) }

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }

func optional(key string, v any) slog.Attr {
	if v == nil {
		return slog.Attr{}
	}
	return slog.Any(key, v)
}
