package billing

import (
	"log/slog"
	"strings"
	"time"
)

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithMaxPaymentFailures sets how many consecutive failed payments cancel a subscription.
func WithMaxPaymentFailures(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.maxFailures = n
		}
	}
}

// WithNotifier sets the receiver of payment-failed notifications.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithDefaultCurrency sets the currency CalculateUpgrade prices in.
func WithDefaultCurrency(currency string) ServiceOption {
	return func(s *Service) {
		if currency != "" {
			s.currency = strings.ToUpper(currency)
		}
	}
}

// WithMetrics enables transition and payment counters.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}
