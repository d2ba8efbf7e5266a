// Package logger builds the *slog.Logger every meterkit component writes to.
//
//	log := logger.New(
//		logger.WithEnvironment(os.Getenv("APP_ENV"), "meterd"),
//		logger.WithLevelName(os.Getenv("LOG_LEVEL")),
//		logger.WithContextExtractors(requestID),
//	)
//
// Development logs text at debug level; staging and production log JSON at
// info level. Context extractors add request-scoped attributes at call time.
//
// The attribute helpers (TenantID, SubscriptionID, Resource, Error, ...) keep
// key names consistent across packages. Error and the id helpers return an
// empty attribute for nil input, which slog drops.
package logger
