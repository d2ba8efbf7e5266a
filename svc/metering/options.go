package metering

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	mtr "github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// Alerts receives both quota warnings and payment failures.
// *notifications.Alerts implements it.
type Alerts interface {
	quota.Notifier
	billing.Notifier
}

type options struct {
	logger       *slog.Logger
	now          func() time.Time
	registerer   prometheus.Registerer
	alerts       Alerts
	freeTier     map[mtr.Resource]mtr.Limit
	pricing      *usage.Pricing
	sink         usage.ArchiveSink
	purge        bool
	concurrency  int
	maxFailures  int
	currency     string
	extraSources []usage.Source
}

// Option configures a Service.
type Option func(*options)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics registers the quota, usage and billing collectors on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithAlerts routes threshold warnings and payment failures to a.
func WithAlerts(a Alerts) Option {
	return func(o *options) {
		o.alerts = a
	}
}

// WithFreeTier replaces the limits of tenants without a subscription.
func WithFreeTier(limits map[mtr.Resource]mtr.Limit) Option {
	return func(o *options) {
		o.freeTier = limits
	}
}

// WithPricing replaces the report price table.
func WithPricing(p usage.Pricing) Option {
	return func(o *options) {
		o.pricing = &p
	}
}

// WithArchiveSink uploads the CSV of each archival run.
func WithArchiveSink(s usage.ArchiveSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithCounterPurge deletes counter events of archived months.
func WithCounterPurge() Option {
	return func(o *options) {
		o.purge = true
	}
}

// WithArchiveConcurrency bounds how many tenants are archived at once.
func WithArchiveConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// WithMaxPaymentFailures sets how many consecutive failures cancel a subscription.
func WithMaxPaymentFailures(n int) Option {
	return func(o *options) {
		o.maxFailures = n
	}
}

// WithDefaultCurrency sets the currency used when none is given.
func WithDefaultCurrency(currency string) Option {
	return func(o *options) {
		o.currency = currency
	}
}

// WithUsageSource adds a record source the aggregator sums besides the event store.
func WithUsageSource(s usage.Source) Option {
	return func(o *options) {
		if s != nil {
			o.extraSources = append(o.extraSources, s)
		}
	}
}
