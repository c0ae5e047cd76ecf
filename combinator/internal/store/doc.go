// Package store keeps the latest emitted sample of every combined metric in
// memory, with TTL eviction, for the REST API and the websocket snapshots.
package store
