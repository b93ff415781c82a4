// Package kvstore abstracts the key-value store backing the asset cache.
//
// Keys follow the convention "kind:id" for records ("asset:42"),
// "kind:subkind:id" for derived sets ("season:7", "decendants:42",
// "perm:asset:read:9"), and "temp:<userID>:<uuid>" for short-lived
// scratch sets that must be deleted by their creator.
package kvstore

import (
	"context"
	"fmt"
)

// Store is the capability contract consumed by the cache, access, and
// resolver layers. Every operation is individually atomic; compound
// sequences (union into a temp key, intersect, delete) are not
// transactional across calls.
type Store interface {
	// GetRecord retrieves the hash stored at key.
	// Returns ErrNotFound if the key does not exist.
	GetRecord(ctx context.Context, key string) (map[string]string, error)

	// SetRecord writes the hash fields at key, merging over existing fields.
	SetRecord(ctx context.Context, key string, fields map[string]string) error

	// GetValue retrieves the plain string stored at key.
	// Returns ErrNotFound if the key does not exist.
	GetValue(ctx context.Context, key string) (string, error)

	// SetValue stores a plain string at key.
	SetValue(ctx context.Context, key, value string) error

	// AddToSet adds members to the set at key, creating it if absent.
	AddToSet(ctx context.Context, key string, members ...string) error

	// UnionStore replaces dest with the union of the src sets.
	UnionStore(ctx context.Context, dest string, srcs ...string) error

	// Intersect returns the members common to all given sets. A missing
	// set behaves as empty.
	Intersect(ctx context.Context, keys ...string) ([]string, error)

	// Union returns the members present in any of the given sets.
	Union(ctx context.Context, keys ...string) ([]string, error)

	// Members returns the members of the set at key; empty if absent.
	Members(ctx context.Context, key string) ([]string, error)

	// Exists reports whether key is present in any form.
	Exists(ctx context.Context, key string) (bool, error)

	// Increment adds one to the integer counter at key, creating it at 1.
	Increment(ctx context.Context, key string) error

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// Keys returns every key matching the glob pattern (e.g. "asset:*").
	Keys(ctx context.Context, pattern string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// Common sentinel errors.
var (
	ErrNotFound    = fmt.Errorf("key not found")
	ErrUnavailable = fmt.Errorf("store unavailable")
)

// unavailable wraps a backend failure so callers can test with
// errors.Is(err, ErrUnavailable).
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}
