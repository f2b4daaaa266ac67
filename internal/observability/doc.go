// Package observability provides structured logging, metrics and the
// per-unit event log for the agent engine.
//
// This package implements:
//   - Process logging (zap-based, json or console)
//   - Prometheus metrics for invocations, stages, policy checks and HTTP traffic
//   - Asynchronous JSON-lines event logs, one file per unit
package observability
