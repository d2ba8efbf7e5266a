// Package notifications stores and delivers tenant-facing notifications
// about usage and billing.
//
// # Architecture
//
//   - Storage: persistence and read state
//   - Deliverer: pushes a stored notification to a channel
//   - Deduper: claims a key so an alert is raised once per window
//   - Manager: stores first, then delivers
//   - Alerts: builds quota-warning and payment-failed notifications and
//     implements quota.Notifier and billing.Notifier
//
// # Basic Usage
//
//	manager := notifications.NewManager(
//	    notifications.NewMemoryStorage(),
//	    notifications.NewLogDeliverer(log),
//	    notifications.WithDeduper(notifications.NewRedisDeduper(rdb, "")),
//	)
//	alerts := notifications.NewAlerts(manager, "https://app.example.com/billing")
//
//	enforcer := quota.NewEnforcer(catalog, aggregator, quota.WithNotifier(alerts))
//	billingSvc := billing.NewService(store, plans, billing.WithNotifier(alerts))
//
// # Deduplication
//
// Quota warnings are keyed by tenant, resource and billing-period start (see
// QuotaWarningKey) and claimed until the period ends. With RedisDeduper the
// claim is shared by every replica, so a tenant hovering around 80% gets one
// warning per period. Payment failures are not deduplicated: billing already
// drops repeated gateway deliveries.
//
// Delivery is best effort. A notification that was stored but could not be
// delivered is logged and stays readable through Manager.List.
package notifications
