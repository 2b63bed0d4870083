// Package kvstore is the durable key-value layer behind cart persistence,
// the selected-customer slot and the durable cache namespaces. Values are
// plain strings (JSON payloads); a missing or corrupt value reads as absent.
package kvstore

import "context"

type Store interface {
	// Get returns the value and whether it exists. A read error is reported
	// separately so callers can choose between fail-closed and fail-open.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
	Remove(ctx context.Context, key string) error
}
