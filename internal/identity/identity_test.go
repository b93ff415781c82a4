package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/access"
	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
)

func newService(t *testing.T, handler http.Handler) (*Service, kvstore.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := kvstore.NewMemoryStore()
	t.Cleanup(func() { kv.Close() })

	cacheStore := cache.NewStore(kv, false, zap.NewNop())
	originClient := origin.New(srv.URL, "Token service-credential", 5*time.Second, zap.NewNop())
	return NewService(cacheStore, originClient, zap.NewNop()), kv
}

// originHandler serves currentuser and permission endpoints, counting
// currentuser hits.
func originHandler(userCalls *int64) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/client/currentuser/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(userCalls, 1)
		w.Write([]byte(`{"id": 9, "user": {"username": "grower18"}}`))
	})
	mux.HandleFunc("/permission/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id": 100, "asset": {"id": 40}, "perm": ["read"]}]`))
	})
	return mux
}

func TestCurrentUserNoTokenFailsFast(t *testing.T) {
	svc, _ := newService(t, http.NotFoundHandler())

	_, err := svc.CurrentUser(context.Background(), "")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestCurrentUserColdFetchStoresUserAndPermissions(t *testing.T) {
	var calls int64
	svc, kv := newService(t, originHandler(&calls))
	ctx := context.Background()

	user, err := svc.CurrentUser(ctx, "Token abc")
	if err != nil {
		t.Fatalf("unexpected error on CurrentUser: %v", err)
	}
	if user.ID != 9 || user.Username != "grower18" {
		t.Errorf("unexpected user %+v", user)
	}

	roots, err := kv.Members(ctx, access.RootSetKey("asset", 9))
	if err != nil {
		t.Fatalf("unexpected error reading root set: %v", err)
	}
	if len(roots) != 1 || roots[0] != "40" {
		t.Errorf("expected permitted roots [40], got %v", roots)
	}
}

func TestCurrentUserWarmHitSkipsOrigin(t *testing.T) {
	var calls int64
	svc, _ := newService(t, originHandler(&calls))
	ctx := context.Background()

	if _, err := svc.CurrentUser(ctx, "Token abc"); err != nil {
		t.Fatalf("unexpected error on cold CurrentUser: %v", err)
	}
	if _, err := svc.CurrentUser(ctx, "Token abc"); err != nil {
		t.Fatalf("unexpected error on warm CurrentUser: %v", err)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected 1 origin call, got %d", got)
	}
}

func TestCurrentUserConcurrentColdLookupsCoalesce(t *testing.T) {
	var calls int64
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/client/currentuser/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		<-release
		w.Write([]byte(`{"id": 9, "user": {"username": "grower18"}}`))
	})
	mux.HandleFunc("/permission/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	})
	svc, _ := newService(t, mux)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CurrentUser(context.Background(), "Token abc"); err != nil {
				t.Errorf("unexpected error on CurrentUser: %v", err)
			}
		}()
	}
	// Give the goroutines time to pile onto the singleflight group.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected concurrent lookups to coalesce into 1 origin call, got %d", got)
	}
}

func TestCurrentUserSurvivesCallerCancellation(t *testing.T) {
	var calls int64
	svc, _ := newService(t, originHandler(&calls))

	// The coalesced flight serves every waiter; a cancelled caller
	// context must not poison the shared fetch.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	user, err := svc.CurrentUser(ctx, "Token abc")
	if err != nil {
		t.Fatalf("unexpected error on CurrentUser with cancelled caller: %v", err)
	}
	if user.ID != 9 {
		t.Errorf("unexpected user %+v", user)
	}
	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Errorf("expected 1 origin call, got %d", got)
	}
}

func TestCurrentUserOriginRejection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/client/currentuser/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	})
	svc, _ := newService(t, mux)

	_, err := svc.CurrentUser(context.Background(), "Token bogus")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
