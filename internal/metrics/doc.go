// Package metrics provides Prometheus metrics for monitoring the gateway.
//
// Key metrics:
//   - Upstream feed state, connects, dial failures and read errors
//   - Lines received, decoded, filtered and failed per feed
//   - WebSocket subscriber count, frames sent and evictions
//   - NATS mirror and journal throughput
//
// A nil *Metrics is valid and records nothing.
package metrics
