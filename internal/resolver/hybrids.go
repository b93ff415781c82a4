package resolver

import (
	"context"

	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/pkg/model"
)

// HybridRequest selects crop varieties, optionally for one crop.
type HybridRequest struct {
	Token string
	Crop  model.ID
}

// Hybrids resolves crop varieties through the cache/origin race. Crop
// varieties are not hierarchy-scoped, so the caller is authenticated but
// no permission intersection applies.
func (r *Resolver) Hybrids(ctx context.Context, req HybridRequest) ([]*model.Hybrid, error) {
	if _, err := r.identity.CurrentUser(ctx, req.Token); err != nil {
		return nil, err
	}

	local := func(ctx context.Context) ([]*model.Hybrid, error) {
		return r.localHybrids(ctx, req)
	}
	server := func(ctx context.Context) ([]*model.Hybrid, error) {
		return r.serverHybrids(ctx, req)
	}

	hybrids, _, err := race(ctx, local, server, false, r.logger)
	return hybrids, err
}

func (r *Resolver) localHybrids(ctx context.Context, req HybridRequest) ([]*model.Hybrid, error) {
	key := "hybrids"
	if req.Crop != 0 {
		key = kvstore.CropHybridsKey(req.Crop.String())
	}
	ids, err := r.kv.Members(ctx, key)
	if err != nil {
		return nil, err
	}
	return decodeIDs(ctx, ids, r.cache.GetHybrid)
}

func (r *Resolver) serverHybrids(ctx context.Context, req HybridRequest) ([]*model.Hybrid, error) {
	hybrids, err := r.origin.FetchHybrids(ctx, req.Crop, req.Token)
	if err != nil {
		return nil, err
	}

	if len(hybrids) > 0 {
		r.logPersistErr("hybrid", r.cache.StoreHybrids(ctx, hybrids))
	}
	return hybrids, nil
}
