package resolver

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/pkg/model"
)

// AssetRequest selects assets for a caller.
type AssetRequest struct {
	Token       string
	RootAsset   model.ID
	Season      model.ID
	Category    string
	ToFarmsOnly bool
	Shape       bool

	// LocalOnly restricts resolution to the cache; an empty answer
	// settles instead of waiting for the origin.
	LocalOnly bool
}

// Assets resolves assets through the cache/origin race.
//
// Sequence per invocation: authenticate, check filter freshness, launch
// the local and server branches, settle, and, for ToFarmsOnly answers
// that came from the server, re-derive the result through the caller's
// own permitted set (the server fetch ran under the privileged service
// credential and must never be returned directly).
func (r *Resolver) Assets(ctx context.Context, req AssetRequest) ([]*model.Asset, error) {
	user, err := r.identity.CurrentUser(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	// First touch of a (rootAsset, season) pair always goes to the
	// origin: a partially warmed cache would answer with fewer assets
	// than the origin holds for the pair.
	serverOnly := false
	if !req.LocalOnly && req.RootAsset != 0 && req.Season != 0 {
		fetched, err := r.cache.Fetched(ctx, req.RootAsset, req.Season)
		if err != nil {
			r.logger.Warn("freshness check failed, forcing origin",
				zap.Error(err),
			)
			fetched = false
		}
		if !fetched {
			serverOnly = true
			if err := r.cache.MarkFetched(ctx, req.RootAsset, req.Season); err != nil {
				r.logger.Warn("failed to record freshness marker", zap.Error(err))
			}
		}
	}

	var local func(context.Context) ([]*model.Asset, error)
	if !serverOnly {
		local = func(ctx context.Context) ([]*model.Asset, error) {
			return r.localAssets(ctx, user, req)
		}
	}
	var server func(context.Context) ([]*model.Asset, error)
	if !req.LocalOnly {
		server = func(ctx context.Context) ([]*model.Asset, error) {
			return r.serverAssets(ctx, req)
		}
	}

	assets, fromServer, err := race(ctx, local, server, req.LocalOnly, r.logger)
	if err != nil {
		return nil, err
	}

	// ToFarmsOnly answers fetched under the service credential are only
	// used to warm the cache; the caller gets a permission-checked
	// cache read instead. The server branch persisted before settling,
	// but the persist only enqueues an index rebuild when a background
	// rebuilder is attached, so the descendant sets the re-derivation
	// intersects through must be brought current here first.
	if req.ToFarmsOnly && fromServer {
		r.logger.Debug("re-deriving privileged answer through caller scope",
			zap.String("user", user.ID.String()),
		)
		if err := r.cache.RebuildIndex(ctx); err != nil {
			return nil, err
		}
		return r.localAssets(ctx, user, req)
	}

	return assets, nil
}

// localAssets answers from the cache: the caller's permitted set
// intersected with the filter sets, decoded into full records. A user
// with no permissions gets an empty answer, never an unfiltered one.
func (r *Resolver) localAssets(ctx context.Context, user *model.User, req AssetRequest) ([]*model.Asset, error) {
	permKey, cleanup, err := r.access.PermittedSetKey(ctx, user.ID, "asset")
	if errors.Is(err, access.ErrNoAccess) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var ids []string
	switch {
	case req.ToFarmsOnly:
		// Non-seasonal organizational assets across every level.
		orgKey := tempUnionKey(user.ID)
		if err := r.kv.UnionStore(ctx, orgKey, model.OrganizationalCategories()...); err != nil {
			return nil, err
		}
		defer func() {
			if err := r.kv.Delete(context.Background(), orgKey); err != nil {
				r.logger.Warn("failed to delete temp union key",
					zap.String("key", orgKey),
					zap.Error(err),
				)
			}
		}()
		ids, err = r.kv.Intersect(ctx, permKey, orgKey)

	case req.Category != "":
		ids, err = r.kv.Intersect(ctx, permKey, req.Category)

	case req.RootAsset != 0 && req.Season != 0:
		ids, err = r.kv.Intersect(ctx, permKey,
			kvstore.SeasonKey(req.Season.String()),
			kvstore.DescendantsKey(req.RootAsset.String()),
		)

	default:
		ids, err = r.kv.Intersect(ctx, permKey, "assets")
	}
	if err != nil {
		return nil, err
	}

	return decodeIDs(ctx, ids, r.cache.GetAsset)
}

// serverAssets fetches from the origin and persists the batch before
// returning, so a settled server branch implies a warm cache.
func (r *Resolver) serverAssets(ctx context.Context, req AssetRequest) ([]*model.Asset, error) {
	assets, err := r.origin.FetchAssets(ctx, origin.AssetQuery{
		RootAsset:   req.RootAsset,
		Season:      req.Season,
		Category:    req.Category,
		ToFarmsOnly: req.ToFarmsOnly,
		Shape:       true,
	}, req.Token)
	if err != nil {
		return nil, err
	}

	if len(assets) > 0 {
		r.logPersistErr("asset", r.cache.StoreAssets(ctx, assets, req.Season))
	}
	return assets, nil
}
