// Package drive is a client for the upstream cloud storage API.
//
// Every remote call runs through the resilience executor, so transient
// upstream failures are retried with backoff, sustained failures trip the
// circuit breaker, and outbound request rate stays within quota. Uploads
// additionally pass through a bulkhead that bounds concurrent transfers.
//
// Folder paths like "reports/2026/q3" are resolved segment by segment with a
// find-or-create walk. Resolved folder IDs are cached with a TTL, and
// concurrent resolutions of the same path are collapsed into one remote
// lookup.
package drive
