package notifications

import (
	"time"
)

// Type represents the notification severity.
type Type string

const (
	TypeInfo    Type = "info"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Kind identifies what raised a notification.
type Kind string

const (
	KindQuotaWarning  Kind = "quota_warning"
	KindPaymentFailed Kind = "payment_failed"
	KindCancelled     Kind = "subscription_cancelled"
)

// Priority represents the notification priority level.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// Action represents a call-to-action in a notification.
type Action struct {
	Label string `json:"label"`
	URL   string `json:"url"`
	Style string `json:"style"` // primary, secondary, danger
}

// Notification is a tenant-facing message about usage or billing.
type Notification struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id"`
	Kind      Kind           `json:"kind"`
	Type      Type           `json:"type"`
	Priority  Priority       `json:"priority"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Actions   []Action       `json:"actions,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// IsExpiredAt reports whether the notification has expired at now.
func (n *Notification) IsExpiredAt(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// MarkAsReadAt marks the notification as read.
func (n *Notification) MarkAsReadAt(now time.Time) {
	n.Read = true
	n.ReadAt = &now
}
