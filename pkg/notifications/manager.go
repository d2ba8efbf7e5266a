package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// Manager stores notifications and hands them to a Deliverer.
type Manager struct {
	storage   Storage
	deliverer Deliverer
	deduper   Deduper
	logger    *slog.Logger
	now       func() time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger for the Manager.
func WithManagerLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithDeduper sets the store SendOnce claims its keys in.
func WithDeduper(d Deduper) ManagerOption {
	return func(m *Manager) {
		if d != nil {
			m.deduper = d
		}
	}
}

// WithManagerClock overrides the time source.
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a new notification manager. A nil deliverer stores
// notifications without pushing them anywhere.
func NewManager(storage Storage, deliverer Deliverer, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage:   storage,
		deliverer: deliverer,
		deduper:   NewMemoryDeduper(),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send stores notif and then delivers it. Delivery failures are logged; the
// stored notification stays available to the tenant.
func (m *Manager) Send(ctx context.Context, notif Notification) error {
	if notif.ID == "" {
		notif.ID = uuid.New().String()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = m.now()
	}

	if err := m.storage.Create(ctx, notif); err != nil {
		return fmt.Errorf("%w: %w", ErrFailedToStore, err)
	}

	if m.deliverer == nil {
		return nil
	}
	if err := m.deliverer.Deliver(ctx, notif); err != nil {
		m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to deliver notification, but it was stored",
			slog.String("notification_id", notif.ID),
			logger.TenantID(notif.TenantID),
			logger.Error(err),
		)
	}
	return nil
}

// SendOnce sends notif only if key was not claimed within ttl. It reports
// whether the notification was sent. A failed send releases the claim so the
// next attempt can retry.
func (m *Manager) SendOnce(ctx context.Context, key string, ttl time.Duration, notif Notification) (bool, error) {
	claimed, err := m.deduper.Claim(ctx, key, ttl)
	if err != nil {
		return false, err
	}
	if !claimed {
		m.logger.LogAttrs(ctx, slog.LevelDebug, "notification already sent",
			slog.String("dedup_key", key),
			logger.TenantID(notif.TenantID),
		)
		return false, nil
	}
	if err := m.Send(ctx, notif); err != nil {
		if rerr := m.deduper.Release(ctx, key); rerr != nil {
			m.logger.LogAttrs(ctx, slog.LevelWarn, "failed to release notification claim",
				slog.String("dedup_key", key),
				logger.TenantID(notif.TenantID),
				logger.Error(rerr),
			)
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) Get(ctx context.Context, tenantID, notifID string) (Notification, error) {
	return m.storage.Get(ctx, tenantID, notifID)
}

func (m *Manager) List(ctx context.Context, tenantID string, opts ListOptions) ([]Notification, error) {
	return m.storage.List(ctx, tenantID, opts)
}

func (m *Manager) MarkRead(ctx context.Context, tenantID string, notifIDs ...string) error {
	return m.storage.MarkRead(ctx, tenantID, notifIDs...)
}

// MarkAllRead marks all notifications of a tenant as read.
func (m *Manager) MarkAllRead(ctx context.Context, tenantID string) error {
	unread, err := m.storage.List(ctx, tenantID, ListOptions{OnlyUnread: true})
	if err != nil {
		return err
	}
	if len(unread) == 0 {
		return nil
	}

	ids := make([]string, len(unread))
	for i, n := range unread {
		ids[i] = n.ID
	}
	return m.storage.MarkRead(ctx, tenantID, ids...)
}

func (m *Manager) CountUnread(ctx context.Context, tenantID string) (int, error) {
	return m.storage.CountUnread(ctx, tenantID)
}
