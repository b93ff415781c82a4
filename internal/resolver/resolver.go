// Package resolver races local-cache reads against origin fetches so
// callers get the fastest trustworthy answer while the cache stays
// eventually consistent.
package resolver

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/identity"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/pkg/model"
)

// ErrMissingFilter means a required filter was absent from the request.
var ErrMissingFilter = fmt.Errorf("missing required filter")

// Resolver coordinates identity, access, cache, and origin for each
// inbound read.
type Resolver struct {
	kv       kvstore.Store
	cache    *cache.Store
	access   *access.Resolver
	identity *identity.Service
	origin   *origin.Client
	logger   *zap.Logger
}

// New wires a resolver over the given collaborators.
func New(kv kvstore.Store, c *cache.Store, a *access.Resolver, id *identity.Service, o *origin.Client, logger *zap.Logger) *Resolver {
	return &Resolver{
		kv:       kv,
		cache:    c,
		access:   a,
		identity: id,
		origin:   o,
		logger:   logger,
	}
}

// branch is one side of the race.
type branch[T any] struct {
	items      []T
	fromServer bool
	err        error
}

// race runs the local and server branches concurrently and settles on
// the first acceptable result:
//
//   - a non-empty local result settles immediately;
//   - an empty local result settles only under localOnly (an empty cache
//     must not answer for the origin);
//   - a server result settles regardless of emptiness;
//   - a server error settles only when the local branch cannot.
//
// The losing branch is not cancelled: it keeps running on a detached
// context purely for its cache-warming side effects. Either branch may
// be nil (localOnly skips the server; first-touch skips the local).
// The second return reports whether the server branch produced the
// answer.
func race[T any](ctx context.Context, local, server func(context.Context) ([]T, error), localOnly bool, logger *zap.Logger) ([]T, bool, error) {
	results := make(chan branch[T], 2)
	remaining := 0

	if local != nil {
		remaining++
		go func() {
			items, err := local(ctx)
			results <- branch[T]{items: items, err: err}
		}()
	}
	if server != nil {
		remaining++
		// The server branch survives the caller settling (or leaving):
		// its fetch-and-persist is what keeps the cache warm.
		detached := context.WithoutCancel(ctx)
		go func() {
			items, err := server(detached)
			results <- branch[T]{items: items, fromServer: true, err: err}
		}()
	}

	var serverErr error
	for remaining > 0 {
		var res branch[T]
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res = <-results:
		}
		remaining--

		if res.fromServer {
			if res.err != nil {
				if remaining > 0 {
					// The local branch may still settle; hold the error.
					serverErr = res.err
					continue
				}
				return nil, false, res.err
			}
			return res.items, true, nil
		}

		// Local branch. Store trouble degrades it to "no result".
		if res.err != nil {
			logger.Warn("local branch degraded", zap.Error(res.err))
			res.items = nil
		}
		if len(res.items) > 0 {
			return res.items, false, nil
		}
		if localOnly {
			return []T{}, false, nil
		}
		// Empty local result does not settle; wait for the server.
	}

	return nil, false, serverErr
}

// tempUnionKey builds a scratch key for category unions, unique per call.
func tempUnionKey(userID model.ID) string {
	return fmt.Sprintf("temp:%s:%s", userID, uuid.NewString())
}

// decodeIDs maps set members to records via load, dropping absent ones.
func decodeIDs[T any](ctx context.Context, ids []string, load func(context.Context, model.ID) (*T, error)) ([]*T, error) {
	out := make([]*T, 0, len(ids))
	for _, raw := range ids {
		id := model.ParseID(raw)
		if id == 0 {
			continue
		}
		record, err := load(ctx, id)
		if err != nil {
			return nil, err
		}
		if record != nil {
			out = append(out, record)
		}
	}
	return out, nil
}

// logPersistErr logs a persist failure without surfacing it; cache
// warm-up failures never reach the calling request.
func (r *Resolver) logPersistErr(kind string, err error) {
	if err != nil {
		r.logger.Error("cache persist failed",
			zap.String("kind", kind),
			zap.Error(err),
		)
	}
}
