package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/granduke/atlas/internal/identity"
	"github.com/granduke/atlas/internal/kvstore"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/internal/resolver"
	"github.com/granduke/atlas/pkg/model"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// writeJSON serialises data as JSON and writes it to the response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

// writeError writes a JSON error envelope to the response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeResolveError maps resolution failures onto HTTP statuses:
// authentication failures are the caller's problem, origin failures are
// the upstream's, everything else is ours.
func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		s.writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, resolver.ErrMissingFilter):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, origin.ErrUnavailable):
		s.writeError(w, http.StatusBadGateway, "origin unavailable")
	case errors.Is(err, kvstore.ErrUnavailable):
		s.writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		s.logger.Error("resolution failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// queryID parses an ID-valued query parameter; absent or malformed
// values read as zero.
func queryID(r *http.Request, name string) model.ID {
	return model.ParseID(r.URL.Query().Get(name))
}

// queryBool parses a boolean query parameter in either Go or origin
// wire form ("true" / "True" / "1").
func queryBool(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "true", "True", "1":
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Health
// ---------------------------------------------------------------------------

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---------------------------------------------------------------------------
// Resolution
// ---------------------------------------------------------------------------

func (s *Server) handleAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := s.resolver.Assets(r.Context(), resolver.AssetRequest{
		Token:       r.Header.Get("Authorization"),
		RootAsset:   queryID(r, "rootAsset"),
		Season:      queryID(r, "season"),
		Category:    r.URL.Query().Get("category"),
		ToFarmsOnly: queryBool(r, "toFarmsOnly"),
		Shape:       queryBool(r, "shape"),
		LocalOnly:   queryBool(r, "localOnly"),
	})
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	if assets == nil {
		assets = []*model.Asset{}
	}
	s.writeJSON(w, http.StatusOK, assets)
}

func (s *Server) handleLayers(w http.ResponseWriter, r *http.Request) {
	layers, err := s.resolver.Layers(r.Context(), resolver.LayerRequest{
		Token:     r.Header.Get("Authorization"),
		RootAsset: queryID(r, "rootAsset"),
		Season:    queryID(r, "season"),
	})
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	if layers == nil {
		layers = []*model.Layer{}
	}
	s.writeJSON(w, http.StatusOK, layers)
}

func (s *Server) handleHybrids(w http.ResponseWriter, r *http.Request) {
	hybrids, err := s.resolver.Hybrids(r.Context(), resolver.HybridRequest{
		Token: r.Header.Get("Authorization"),
		Crop:  queryID(r, "crop"),
	})
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	if hybrids == nil {
		hybrids = []*model.Hybrid{}
	}
	s.writeJSON(w, http.StatusOK, hybrids)
}

// ---------------------------------------------------------------------------
// Cache maintenance
// ---------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.CacheStats(r.Context())
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.RebuildIndex(r.Context()); err != nil {
		s.writeResolveError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "reindexed"})
}
