package notifications

import "errors"

var (
	ErrNotificationNotFound = errors.New("notifications: notification not found")
	ErrMissingID            = errors.New("notifications: notification id is required")
	ErrMissingTenantID      = errors.New("notifications: tenant id is required")
	ErrFailedToStore        = errors.New("notifications: failed to store notification")
)
