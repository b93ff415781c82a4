package origin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "Token service-credential", 5*time.Second, zap.NewNop())
}

func TestFetchAssetsDecodesLooseJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asset/" {
			t.Errorf("expected path /asset/, got %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token user-token" {
			t.Errorf("expected caller token, got %q", got)
		}
		// Category as object, parent as object, boolean as 0/1.
		w.Write([]byte(`[
			{"id": 3, "label": "East Field", "category": {"name": "Field"},
			 "parent": {"id": 2},
			 "field_info": {"id": 7, "field": 3, "season": 2024, "irrigated": 1, "acres": "160.5"}}
		]`))
	})

	assets, err := c.FetchAssets(context.Background(), AssetQuery{}, "Token user-token")
	if err != nil {
		t.Fatalf("unexpected error on FetchAssets: %v", err)
	}
	if len(assets) != 1 {
		t.Fatalf("expected 1 asset, got %d", len(assets))
	}
	a := assets[0]
	if a.ID != 3 || a.Parent != 2 || a.Category != "Field" {
		t.Errorf("unexpected asset %+v", a)
	}
	if a.FieldInfo == nil {
		t.Fatal("expected field_info to decode")
	}
	if !bool(a.FieldInfo.Irrigated) {
		t.Error("expected irrigated=1 to decode as true")
	}
	if float64(a.FieldInfo.Acres) != 160.5 {
		t.Errorf("expected acres 160.5, got %v", a.FieldInfo.Acres)
	}
}

func TestFetchAssetsQueryAndPath(t *testing.T) {
	var gotURL string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotURL = r.URL.String()
		w.Write([]byte(`[]`))
	})

	_, err := c.FetchAssets(context.Background(), AssetQuery{
		RootAsset: 5,
		Season:    2024,
		Shape:     true,
	}, "Token user-token")
	if err != nil {
		t.Fatalf("unexpected error on FetchAssets: %v", err)
	}
	want := "/asset/field/?rootAsset=5&season=2024&shape=True"
	if gotURL != want {
		t.Errorf("expected URL %s, got %s", want, gotURL)
	}
}

func TestFetchAssetsToFarmsOnlyUsesServiceCredential(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token service-credential" {
			t.Errorf("expected service credential, got %q", got)
		}
		if got := r.URL.Query().Get("toFarmsOnly"); got != "True" {
			t.Errorf("expected toFarmsOnly=True, got %q", got)
		}
		w.Write([]byte(`[]`))
	})

	_, err := c.FetchAssets(context.Background(), AssetQuery{ToFarmsOnly: true}, "Token user-token")
	if err != nil {
		t.Fatalf("unexpected error on FetchAssets: %v", err)
	}
}

func TestFetchSurfacesErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid season", http.StatusBadRequest)
	})

	_, err := c.FetchAssets(context.Background(), AssetQuery{}, "Token user-token")
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %T: %v", err, err)
	}
	if statusErr.Status != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", statusErr.Status)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Error("expected StatusError to unwrap to ErrUnavailable")
	}
}

func TestFetchTransportFailure(t *testing.T) {
	c := New("http://127.0.0.1:1", "", 500*time.Millisecond, zap.NewNop())

	_, err := c.FetchAssets(context.Background(), AssetQuery{}, "Token user-token")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable on transport failure, got %v", err)
	}
}

func TestFetchCurrentUserNestedUsername(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/client/currentuser/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"id": 9, "user": {"username": "grower18"}}`))
	})

	user, err := c.FetchCurrentUser(context.Background(), "Token user-token")
	if err != nil {
		t.Fatalf("unexpected error on FetchCurrentUser: %v", err)
	}
	if user.ID != 9 || user.Username != "grower18" {
		t.Errorf("unexpected user %+v", user)
	}
}

func TestFetchPermissions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/permission/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("clientID"); got != "9" {
			t.Errorf("expected clientID=9, got %q", got)
		}
		if got := r.URL.Query().Get("assetID"); got != "1" {
			t.Errorf("expected assetID=1, got %q", got)
		}
		w.Write([]byte(`[{"id": 100, "asset": {"id": 40}, "perm": ["read"]}]`))
	})

	perms, err := c.FetchPermissions(context.Background(), 9, "Token user-token")
	if err != nil {
		t.Fatalf("unexpected error on FetchPermissions: %v", err)
	}
	if len(perms) != 1 {
		t.Fatalf("expected 1 permission, got %d", len(perms))
	}
	p := perms[0]
	if p.Asset != 40 || p.UserID != 9 || !p.HasCapability("read") {
		t.Errorf("unexpected permission %+v", p)
	}
}
