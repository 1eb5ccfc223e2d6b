// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream connection state, retry count and exhaustion
//   - Frame, stale callback and send error counters
//   - Router message counts by outcome
//   - Coalescing buffer adds, drops, flushes and depth
//
// Metrics are collected on scrape from the components' Stats methods, so the
// hot path carries no instrumentation.
package metrics
