// Package cache provides a TTL cache for remote folder-ID lookups.
//
// Resolving a folder path against the storage API costs one remote call per
// path segment; the drive client caches resolved IDs here so repeated
// uploads into the same folder skip the lookups entirely.
package cache
