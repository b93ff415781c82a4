package apiserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/identity"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/internal/resolver"
	"github.com/granduke/atlas/pkg/model"
)

func newTestServer(t *testing.T) (*Server, *cache.Store) {
	t.Helper()

	// An unreachable origin: anything that falls through to it fails.
	originSrv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(originSrv.Close)

	kv := kvstore.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })

	logger := zap.NewNop()
	cacheStore := cache.NewStore(kv, false, logger)
	originClient := origin.New(originSrv.URL, "Token service", 2*time.Second, logger)
	accessResolver := access.NewResolver(kv, logger)
	identitySvc := identity.NewService(cacheStore, originClient, logger)
	res := resolver.New(kv, cacheStore, accessResolver, identitySvc, originClient, logger)

	return NewServer("127.0.0.1:0", res, cacheStore, logger), cacheStore
}

func do(t *testing.T, srv *Server, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAssetsWithoutTokenIsUnauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/assets", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLayersWithoutFiltersIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(t, srv, http.MethodGet, "/api/v1/layers", "Token abc")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAssetsLocalOnlyServesFromCache(t *testing.T) {
	srv, cacheStore := newTestServer(t)
	ctx := context.Background()

	assets := []*model.Asset{
		{ID: 10, Label: "west", Category: model.CategoryRegion},
		{ID: 30, Label: "field", Category: "Field", Parent: 10},
	}
	if err := cacheStore.StoreAssets(ctx, assets, 2024); err != nil {
		t.Fatalf("unexpected error seeding assets: %v", err)
	}
	if err := cacheStore.StoreUser(ctx, &model.User{ID: 7, Username: "grower"}, "Token abc"); err != nil {
		t.Fatalf("unexpected error seeding user: %v", err)
	}
	perms := []*model.Permission{{ID: 1, Asset: 10, Capabilities: model.StringSet{model.CapabilityRead}}}
	if err := cacheStore.StorePermissions(ctx, 7, perms); err != nil {
		t.Fatalf("unexpected error seeding permissions: %v", err)
	}

	rec := do(t, srv, http.MethodGet, "/api/v1/assets?category=Field&localOnly=true", "Token abc")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var got []*model.Asset
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(got) != 1 || got[0].ID != 30 {
		t.Errorf("expected [30], got %+v", got)
	}
}

func TestStatsAndReindex(t *testing.T) {
	srv, cacheStore := newTestServer(t)
	ctx := context.Background()

	assets := []*model.Asset{{ID: 10, Category: model.CategoryRegion}}
	if err := cacheStore.StoreAssets(ctx, assets, 0); err != nil {
		t.Fatalf("unexpected error seeding assets: %v", err)
	}

	rec := do(t, srv, http.MethodPost, "/api/v1/reindex", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, srv, http.MethodGet, "/api/v1/stats", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats cache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if stats.Assets != 1 {
		t.Errorf("expected 1 cached asset, got %d", stats.Assets)
	}
	if stats.Rebuilds < 1 {
		t.Errorf("expected at least one rebuild recorded, got %d", stats.Rebuilds)
	}
}
