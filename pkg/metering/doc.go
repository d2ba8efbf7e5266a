// Package metering holds the vocabulary shared by the quota, usage and billing
// packages: the closed set of metered resources, quota limits that are either
// a finite amount or unlimited, per-resource totals and reporting periods.
//
// Quantities are decimal.Decimal values. Storage is measured in bytes, processing
// and transcription in minutes, API calls in calls and AI usage in tokens.
// Decimals keep byte-precision storage totals exact and allow fractional minutes.
//
// Adding a resource means adding it to AllResources and then updating the
// free-tier defaults in package quota, the remediation suggestions in
// quota.Suggestion and the pricing table in package usage. Each of those
// packages has a test that walks AllResources so the sets cannot drift apart.
package metering
