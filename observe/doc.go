// Package observe provides observability primitives for the storage
// front-end: a structured JSON logger, OpenTelemetry tracing and metrics for
// remote API calls, and exporter wiring.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. The drive client and the HTTP server wire the
// observer in.
package observe
