package notifications

import (
	"context"
	"time"
)

// Storage handles notification persistence and retrieval.
type Storage interface {
	// Create stores a new notification.
	Create(ctx context.Context, notif Notification) error

	// Get retrieves a single notification.
	Get(ctx context.Context, tenantID, notifID string) (Notification, error)

	// List returns notifications for a tenant, newest first.
	List(ctx context.Context, tenantID string, opts ListOptions) ([]Notification, error)

	// MarkRead marks notification(s) as read.
	MarkRead(ctx context.Context, tenantID string, notifIDs ...string) error

	// CountUnread returns the unread count for a tenant.
	CountUnread(ctx context.Context, tenantID string) (int, error)
}

// ListOptions provides filtering and pagination options for listing notifications.
type ListOptions struct {
	Limit      int // 0 = no limit
	Offset     int
	OnlyUnread bool
	Kinds      []Kind
	Since      *time.Time
}
