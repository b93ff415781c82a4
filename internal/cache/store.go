// Package cache persists decoded origin records into the key-value store
// and maintains the derived indexes and freshness markers over them.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/hierarchy"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/pkg/model"
)

// Store writes records to the key-value store and keeps the
// category/season/parent set memberships they are indexed by. Records
// are created and updated only; this subsystem never deletes them, so
// absence is indistinguishable from "not yet fetched".
type Store struct {
	kv     kvstore.Store
	logger *zap.Logger

	// rebuildDisabled is the escape hatch for bulk-seeding pipelines
	// that want to trigger one rebuild themselves at the end.
	rebuildDisabled bool

	// rebuilder, when attached, coalesces rebuild requests in the
	// background. Without one, rebuilds run inline after each batch.
	rebuilder *Rebuilder
}

// NewStore creates a cache store over kv.
func NewStore(kv kvstore.Store, rebuildDisabled bool, logger *zap.Logger) *Store {
	return &Store{
		kv:              kv,
		rebuildDisabled: rebuildDisabled,
		logger:          logger,
	}
}

// AttachRebuilder routes rebuild requests through r instead of running
// them inline.
func (s *Store) AttachRebuilder(r *Rebuilder) {
	s.rebuilder = r
}

// ---------------------------------------------------------------------------
// Persist
// ---------------------------------------------------------------------------

// StoreAssets persists a batch of decoded assets. Each asset joins the
// global kind set, its category set, and, for seasonal categories under
// a season filter, the season set. Owned shapes are persisted alongside.
// After the batch a hierarchy index rebuild is requested.
func (s *Store) StoreAssets(ctx context.Context, assets []*model.Asset, season model.ID) error {
	for _, asset := range assets {
		if err := s.storeAsset(ctx, asset, season); err != nil {
			return err
		}
	}

	s.requestRebuild(ctx)
	return nil
}

func (s *Store) storeAsset(ctx context.Context, asset *model.Asset, season model.ID) error {
	id := asset.ID.String()

	if err := s.kv.AddToSet(ctx, "assets", id); err != nil {
		return fmt.Errorf("indexing asset %s: %w", id, err)
	}
	if asset.Category != "" {
		if err := s.kv.AddToSet(ctx, string(asset.Category), id); err != nil {
			return fmt.Errorf("indexing asset %s by category: %w", id, err)
		}
	}
	// Organizational assets are not seasonal and skip season indexing.
	if season != 0 && !model.IsOrganizational(string(asset.Category)) {
		if err := s.kv.AddToSet(ctx, kvstore.SeasonKey(season.String()), id); err != nil {
			return fmt.Errorf("indexing asset %s by season: %w", id, err)
		}
	}

	if err := s.kv.SetRecord(ctx, model.Key(model.KindAsset, asset.ID), asset.Record()); err != nil {
		return fmt.Errorf("storing asset %s: %w", id, err)
	}

	if asset.Shape != nil {
		shape := asset.Shape
		if shape.Asset == 0 {
			shape.Asset = asset.ID
		}
		if err := s.kv.AddToSet(ctx, "shapes", shape.ID.String()); err != nil {
			return fmt.Errorf("indexing shape %s: %w", shape.ID, err)
		}
		if err := s.kv.SetRecord(ctx, model.Key(model.KindShape, shape.ID), shape.Record()); err != nil {
			return fmt.Errorf("storing shape %s: %w", shape.ID, err)
		}
	}
	return nil
}

// StoreLayers persists a batch of layer records, indexed by owning asset.
func (s *Store) StoreLayers(ctx context.Context, layers []*model.Layer) error {
	for _, layer := range layers {
		id := layer.ID.String()
		if err := s.kv.AddToSet(ctx, "layers", id); err != nil {
			return fmt.Errorf("indexing layer %s: %w", id, err)
		}
		if err := s.kv.AddToSet(ctx, kvstore.LayersByAssetKey(layer.Asset.String()), id); err != nil {
			return fmt.Errorf("indexing layer %s by asset: %w", id, err)
		}
		if err := s.kv.SetRecord(ctx, model.Key(model.KindLayer, layer.ID), layer.Record()); err != nil {
			return fmt.Errorf("storing layer %s: %w", id, err)
		}
	}
	return nil
}

// StoreHybrids persists a batch of crop variety records, indexed by crop.
func (s *Store) StoreHybrids(ctx context.Context, hybrids []*model.Hybrid) error {
	for _, hybrid := range hybrids {
		id := hybrid.ID.String()
		if err := s.kv.AddToSet(ctx, "hybrids", id); err != nil {
			return fmt.Errorf("indexing hybrid %s: %w", id, err)
		}
		if err := s.kv.AddToSet(ctx, kvstore.CropHybridsKey(hybrid.Crop.String()), id); err != nil {
			return fmt.Errorf("indexing hybrid %s by crop: %w", id, err)
		}
		if err := s.kv.SetRecord(ctx, model.Key(model.KindHybrid, hybrid.ID), hybrid.Record()); err != nil {
			return fmt.Errorf("storing hybrid %s: %w", id, err)
		}
	}
	return nil
}

// StoreUser persists a user record and the token mapping it was resolved
// through.
func (s *Store) StoreUser(ctx context.Context, user *model.User, token string) error {
	if err := s.kv.AddToSet(ctx, "users", user.ID.String()); err != nil {
		return fmt.Errorf("indexing user %s: %w", user.ID, err)
	}
	if err := s.kv.SetValue(ctx, kvstore.TokenKey(token), user.ID.String()); err != nil {
		return fmt.Errorf("storing token mapping: %w", err)
	}
	if err := s.kv.SetRecord(ctx, model.Key(model.KindUser, user.ID), user.Record()); err != nil {
		return fmt.Errorf("storing user %s: %w", user.ID, err)
	}
	return nil
}

// StorePermissions persists a user's permission records and maintains the
// per-user root set that access resolution reads.
func (s *Store) StorePermissions(ctx context.Context, userID model.ID, perms []*model.Permission) error {
	for _, perm := range perms {
		id := perm.ID.String()
		if err := s.kv.AddToSet(ctx, "perm", id); err != nil {
			return fmt.Errorf("indexing permission %s: %w", id, err)
		}
		if err := s.kv.SetRecord(ctx, model.Key(model.KindPermission, perm.ID), perm.Record()); err != nil {
			return fmt.Errorf("storing permission %s: %w", id, err)
		}
		if perm.HasCapability(model.CapabilityRead) {
			key := access.RootSetKey("asset", userID)
			if err := s.kv.AddToSet(ctx, key, perm.Asset.String()); err != nil {
				return fmt.Errorf("indexing permitted root %s: %w", perm.Asset, err)
			}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Freshness markers
// ---------------------------------------------------------------------------

// Fetched reports whether an origin fetch for the (rootAsset, season)
// filter pair has ever completed. Until it has, cache answers for that
// pair are untrustworthy even when non-empty.
func (s *Store) Fetched(ctx context.Context, rootAsset, season model.ID) (bool, error) {
	return s.kv.Exists(ctx, kvstore.FreshnessKey(rootAsset.String(), season.String()))
}

// MarkFetched records a first touch of the (rootAsset, season) pair.
func (s *Store) MarkFetched(ctx context.Context, rootAsset, season model.ID) error {
	return s.kv.Increment(ctx, kvstore.FreshnessKey(rootAsset.String(), season.String()))
}

// ---------------------------------------------------------------------------
// Record reads
// ---------------------------------------------------------------------------

// GetAsset loads an asset record, including its shape when owned.
// Returns nil without error when the record is absent.
func (s *Store) GetAsset(ctx context.Context, id model.ID) (*model.Asset, error) {
	fields, err := s.kv.GetRecord(ctx, model.Key(model.KindAsset, id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	asset, shapeID := model.AssetFromRecord(fields)
	if shapeID != 0 {
		shapeFields, err := s.kv.GetRecord(ctx, model.Key(model.KindShape, shapeID))
		if err == nil {
			asset.Shape = model.ShapeFromRecord(shapeFields)
		} else if !errors.Is(err, kvstore.ErrNotFound) {
			s.logger.Warn("failed to load shape",
				zap.String("asset", id.String()),
				zap.String("shape", shapeID.String()),
				zap.Error(err),
			)
		}
	}
	return asset, nil
}

// GetLayer loads a layer record; nil when absent.
func (s *Store) GetLayer(ctx context.Context, id model.ID) (*model.Layer, error) {
	fields, err := s.kv.GetRecord(ctx, model.Key(model.KindLayer, id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.LayerFromRecord(fields), nil
}

// GetHybrid loads a hybrid record; nil when absent.
func (s *Store) GetHybrid(ctx context.Context, id model.ID) (*model.Hybrid, error) {
	fields, err := s.kv.GetRecord(ctx, model.Key(model.KindHybrid, id))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.HybridFromRecord(fields), nil
}

// GetUserByToken resolves the cached token → id → user chain; nil when
// either link is missing.
func (s *Store) GetUserByToken(ctx context.Context, token string) (*model.User, error) {
	id, err := s.kv.GetValue(ctx, kvstore.TokenKey(token))
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	fields, err := s.kv.GetRecord(ctx, model.KindUser+":"+id)
	if errors.Is(err, kvstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return model.UserFromRecord(fields), nil
}

// ---------------------------------------------------------------------------
// Index rebuild
// ---------------------------------------------------------------------------

// requestRebuild schedules an index rebuild after a persist batch.
// Failures here are background maintenance failures: logged, never
// surfaced to the request that triggered the persist.
func (s *Store) requestRebuild(ctx context.Context) {
	if s.rebuildDisabled {
		return
	}
	if s.rebuilder != nil {
		s.rebuilder.Request()
		return
	}
	if err := s.RebuildIndex(ctx); err != nil {
		s.logger.Error("index rebuild failed", zap.Error(err))
	}
}

// RebuildIndex recomputes the ancestor/descendant relation from every
// asset record in the store and rewrites the per-asset index sets,
// replacing prior members. On a data-integrity failure the old sets are
// left untouched: stale-but-consistent beats corrupt.
func (s *Store) RebuildIndex(ctx context.Context) error {
	keys, err := s.kv.Keys(ctx, model.KindAsset+":*")
	if err != nil {
		return fmt.Errorf("scanning asset keys: %w", err)
	}

	assets := make(map[model.ID]*model.Asset, len(keys))
	for _, key := range keys {
		fields, err := s.kv.GetRecord(ctx, key)
		if errors.Is(err, kvstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", key, err)
		}
		asset, _ := model.AssetFromRecord(fields)
		if asset.ID == 0 {
			continue
		}
		assets[asset.ID] = asset
	}

	idx, err := hierarchy.Build(assets)
	if err != nil {
		return err
	}

	for id := range assets {
		if err := s.replaceSet(ctx, kvstore.AncestorsKey(id.String()), idStrings(idx.Ancestors(id))); err != nil {
			return fmt.Errorf("writing ancestors of %s: %w", id, err)
		}
		if err := s.replaceSet(ctx, kvstore.DescendantsKey(id.String()), idStrings(idx.Descendants(id))); err != nil {
			return fmt.Errorf("writing descendants of %s: %w", id, err)
		}
	}

	if err := s.kv.Increment(ctx, "stats:rebuilds"); err != nil {
		s.logger.Warn("failed to bump rebuild counter", zap.Error(err))
	}
	s.logger.Info("index rebuilt", zap.Int("assets", idx.Len()))
	return nil
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

// Stats summarizes cache contents for the operator surface.
type Stats struct {
	Assets      int   `json:"assets"`
	Shapes      int   `json:"shapes"`
	Layers      int   `json:"layers"`
	Hybrids     int   `json:"hybrids"`
	Users       int   `json:"users"`
	Permissions int   `json:"permissions"`
	Rebuilds    int64 `json:"rebuilds"`
}

// CacheStats reports set cardinalities per resource kind and the number
// of completed index rebuilds.
func (s *Store) CacheStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	for _, c := range []struct {
		key  string
		dest *int
	}{
		{"assets", &stats.Assets},
		{"shapes", &stats.Shapes},
		{"layers", &stats.Layers},
		{"hybrids", &stats.Hybrids},
		{"users", &stats.Users},
		{"perm", &stats.Permissions},
	} {
		members, err := s.kv.Members(ctx, c.key)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", c.key, err)
		}
		*c.dest = len(members)
	}

	raw, err := s.kv.GetValue(ctx, "stats:rebuilds")
	if err == nil {
		stats.Rebuilds, _ = strconv.ParseInt(raw, 10, 64)
	} else if !errors.Is(err, kvstore.ErrNotFound) {
		return nil, fmt.Errorf("reading rebuild counter: %w", err)
	}
	return stats, nil
}

// replaceSet swaps the members of key in one server-side operation. New
// members are staged under a scratch key and moved in with UnionStore,
// which replaces atomically in every backend, so a concurrent reader
// sees the old set or the new one, never an emptied set mid-rewrite.
func (s *Store) replaceSet(ctx context.Context, key string, members []string) error {
	if len(members) == 0 {
		return s.kv.Delete(ctx, key)
	}

	scratch := "temp:index:" + uuid.NewString()
	if err := s.kv.AddToSet(ctx, scratch, members...); err != nil {
		return err
	}
	if err := s.kv.UnionStore(ctx, key, scratch); err != nil {
		_ = s.kv.Delete(context.Background(), scratch)
		return err
	}
	return s.kv.Delete(ctx, scratch)
}

func idStrings(ids []model.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
