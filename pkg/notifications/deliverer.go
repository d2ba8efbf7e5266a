package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/meterkit/pkg/logger"
)

// Deliverer pushes a stored notification to an outside channel.
type Deliverer interface {
	Deliver(ctx context.Context, notif Notification) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, notif Notification) error

func (f DelivererFunc) Deliver(ctx context.Context, notif Notification) error {
	return f(ctx, notif)
}

// MultiDeliverer fans a notification out to several channels. A failing
// channel is logged and does not stop the others.
type MultiDeliverer struct {
	deliverers []Deliverer
	logger     *slog.Logger
}

// MultiDelivererOption configures a MultiDeliverer.
type MultiDelivererOption func(*MultiDeliverer)

// WithMultiDelivererLogger sets the logger for the MultiDeliverer.
func WithMultiDelivererLogger(l *slog.Logger) MultiDelivererOption {
	return func(m *MultiDeliverer) {
		m.logger = l
	}
}

// NewMultiDeliverer creates a new multi-channel deliverer.
func NewMultiDeliverer(deliverers []Deliverer, opts ...MultiDelivererOption) *MultiDeliverer {
	m := &MultiDeliverer{
		deliverers: deliverers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver sends notif through all configured channels.
func (m *MultiDeliverer) Deliver(ctx context.Context, notif Notification) error {
	for i, d := range m.deliverers {
		if err := d.Deliver(ctx, notif); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "failed to deliver notification",
				slog.String("notification_id", notif.ID),
				logger.TenantID(notif.TenantID),
				slog.Int("deliverer_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// LogDeliverer writes notifications to a structured log. It is the default
// channel of the daemon until a tenant-facing channel is configured.
type LogDeliverer struct {
	logger *slog.Logger
}

// NewLogDeliverer creates a LogDeliverer.
func NewLogDeliverer(l *slog.Logger) *LogDeliverer {
	if l == nil {
		l = slog.Default()
	}
	return &LogDeliverer{logger: l}
}

func (d *LogDeliverer) Deliver(ctx context.Context, notif Notification) error {
	d.logger.LogAttrs(ctx, slog.LevelInfo, notif.Title,
		slog.String("notification_id", notif.ID),
		logger.TenantID(notif.TenantID),
		slog.String("kind", string(notif.Kind)),
		slog.String("type", string(notif.Type)),
		slog.String("message", notif.Message),
	)
	return nil
}
