// Package server exposes the HTTP surface of the service: file upload and
// folder deletion backed by the storage client, the OAuth2 authorization
// flow, and operational endpoints (health, service status, metrics, version).
//
// Failures from the storage layer map onto HTTP statuses by outcome: an open
// circuit breaker or rate-limit timeout answers 503 so callers back off,
// exhausted retries answer 502, and permanent upstream rejections pass
// through their 4xx status. Every error body uses one envelope shape:
//
//	{"error": {"type": "...", "message": "..."}}
package server
