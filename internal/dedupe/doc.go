// Package dedupe provides message deduplication using a time-based cache
// to suppress redelivered realtime events within a configurable window.
package dedupe
