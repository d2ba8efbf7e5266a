package main

import "time"

// appConfig is the process-level configuration. Infrastructure settings live
// in the Config structs of pg, redis, archive, httpserver and billing.
type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"meterd"`
	LogLevel string `env:"LOG_LEVEL"`

	PlansFile          string `env:"METERD_PLANS_FILE,required"`
	DefaultCurrency    string `env:"METERD_DEFAULT_CURRENCY" envDefault:"USD"`
	MaxPaymentFailures int    `env:"METERD_MAX_PAYMENT_FAILURES" envDefault:"3"`
	BillingURL         string `env:"METERD_BILLING_URL"`

	ArchiveDir         string `env:"METERD_ARCHIVE_DIR"`
	ArchiveConcurrency int    `env:"METERD_ARCHIVE_CONCURRENCY" envDefault:"4"`
	PurgeCounters      bool   `env:"METERD_PURGE_COUNTERS" envDefault:"false"`

	SchedulerEnabled  bool          `env:"METERD_SCHEDULER_ENABLED" envDefault:"true"`
	SchedulerInterval time.Duration `env:"METERD_SCHEDULER_INTERVAL" envDefault:"30s"`
	ReadinessTimeout  time.Duration `env:"METERD_READINESS_TIMEOUT" envDefault:"2s"`
}
