package resolver

import (
	"context"
	"errors"
	"fmt"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/pkg/model"
)

// LayerRequest selects layers under a root asset for a season. Both
// filters are mandatory.
type LayerRequest struct {
	Token     string
	RootAsset model.ID
	Season    model.ID
}

// Layers resolves imagery layers through the cache/origin race.
func (r *Resolver) Layers(ctx context.Context, req LayerRequest) ([]*model.Layer, error) {
	if req.RootAsset == 0 || req.Season == 0 {
		return nil, fmt.Errorf("%w: rootAsset and season", ErrMissingFilter)
	}

	user, err := r.identity.CurrentUser(ctx, req.Token)
	if err != nil {
		return nil, err
	}

	local := func(ctx context.Context) ([]*model.Layer, error) {
		return r.localLayers(ctx, user, req)
	}
	server := func(ctx context.Context) ([]*model.Layer, error) {
		return r.serverLayers(ctx, req)
	}

	layers, _, err := race(ctx, local, server, false, r.logger)
	return layers, err
}

// localLayers narrows the caller's permitted assets to the season and
// root-asset subtree, then unions the layer sets attached to those
// assets.
func (r *Resolver) localLayers(ctx context.Context, user *model.User, req LayerRequest) ([]*model.Layer, error) {
	permKey, cleanup, err := r.access.PermittedSetKey(ctx, user.ID, "asset")
	if errors.Is(err, access.ErrNoAccess) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer cleanup()

	assetIDs, err := r.kv.Intersect(ctx, permKey,
		kvstore.SeasonKey(req.Season.String()),
		kvstore.DescendantsKey(req.RootAsset.String()),
	)
	if err != nil {
		return nil, err
	}
	if len(assetIDs) == 0 {
		return nil, nil
	}

	layerSetKeys := make([]string, len(assetIDs))
	for i, id := range assetIDs {
		layerSetKeys[i] = kvstore.LayersByAssetKey(id)
	}
	layerIDs, err := r.kv.Union(ctx, layerSetKeys...)
	if err != nil {
		return nil, err
	}

	return decodeIDs(ctx, layerIDs, r.cache.GetLayer)
}

func (r *Resolver) serverLayers(ctx context.Context, req LayerRequest) ([]*model.Layer, error) {
	layers, err := r.origin.FetchLayers(ctx, origin.LayerQuery{
		RootAsset: req.RootAsset,
		Season:    req.Season,
	}, req.Token)
	if err != nil {
		return nil, err
	}

	if len(layers) > 0 {
		r.logPersistErr("layer", r.cache.StoreLayers(ctx, layers))
	}
	return layers, nil
}
