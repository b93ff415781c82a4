// Package access resolves the transitive set of asset IDs a user may
// read. A permission names a root asset; access propagates to every
// descendant of that root, never upward.
package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/pkg/model"
)

// ErrNoAccess means the user has zero permitted roots for the domain.
// Callers must treat this as "no access", never as "unfiltered".
var ErrNoAccess = fmt.Errorf("no permitted roots")

// Resolver materializes per-user permitted-ID sets in the store.
type Resolver struct {
	store  kvstore.Store
	logger *zap.Logger
}

// NewResolver creates an access resolver over the given store.
func NewResolver(s kvstore.Store, logger *zap.Logger) *Resolver {
	return &Resolver{store: s, logger: logger}
}

// RootSetKey is the set of root asset IDs the user holds read
// permissions on within domain (currently always "asset").
func RootSetKey(domain string, userID model.ID) string {
	return fmt.Sprintf("perm:%s:%s:%s", domain, model.CapabilityRead, userID)
}

// tempKey builds a scratch set key unique to this call. The random
// suffix keeps concurrent calls for the same user from clobbering each
// other's temp sets.
func tempKey(userID model.ID) string {
	return fmt.Sprintf("temp:%s:%s", userID, uuid.NewString())
}

// PermittedSetKey computes the user's transitive permitted asset IDs for
// the domain and stores them under a temporary set key: the union of
// every permitted root's descendant set, plus the roots themselves.
//
// The returned cleanup deletes the temp key and must be called when the
// set is no longer needed. Returns ErrNoAccess when the user holds no
// permissions (fail-closed).
func (r *Resolver) PermittedSetKey(ctx context.Context, userID model.ID, domain string) (string, func(), error) {
	roots, err := r.store.Members(ctx, RootSetKey(domain, userID))
	if err != nil {
		return "", nil, fmt.Errorf("reading permitted roots: %w", err)
	}
	if len(roots) == 0 {
		return "", nil, ErrNoAccess
	}

	descendantKeys := make([]string, len(roots))
	for i, root := range roots {
		descendantKeys[i] = kvstore.DescendantsKey(root)
	}

	key := tempKey(userID)
	if err := r.store.UnionStore(ctx, key, descendantKeys...); err != nil {
		return "", nil, fmt.Errorf("storing permitted union: %w", err)
	}
	// A root is itself permitted, not only its descendants.
	if err := r.store.AddToSet(ctx, key, roots...); err != nil {
		_ = r.store.Delete(context.Background(), key)
		return "", nil, fmt.Errorf("adding permitted roots: %w", err)
	}

	cleanup := func() {
		if err := r.store.Delete(context.Background(), key); err != nil {
			r.logger.Warn("failed to delete temp permitted set",
				zap.String("key", key),
				zap.Error(err),
			)
		}
	}
	return key, cleanup, nil
}
