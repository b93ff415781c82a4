// Package identity resolves bearer tokens to users, pulling the user and
// their permission records from the origin on a cache miss.
package identity

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/granduke/atlas/internal/cache"
	"github.com/granduke/atlas/internal/origin"
	"github.com/granduke/atlas/pkg/model"
)

// ErrUnauthenticated means no token was supplied or the origin rejected
// it. Fatal to the request; surfaced immediately.
var ErrUnauthenticated = fmt.Errorf("unauthenticated")

// Service caches token → user resolution.
type Service struct {
	cache  *cache.Store
	origin *origin.Client
	logger *zap.Logger

	// group collapses concurrent cold lookups for the same token into
	// one origin round-trip.
	group singleflight.Group
}

// NewService creates an identity service.
func NewService(c *cache.Store, o *origin.Client, logger *zap.Logger) *Service {
	return &Service{cache: c, origin: o, logger: logger}
}

// CurrentUser resolves the user owning the token, first from cache, then
// from the origin. An origin resolution also fetches and stores the
// user's permission records so access resolution can run locally.
func (s *Service) CurrentUser(ctx context.Context, token string) (*model.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	user, err := s.cache.GetUserByToken(ctx, token)
	if err != nil {
		// Store trouble degrades to an origin lookup.
		s.logger.Warn("user cache read failed", zap.Error(err))
	}
	if user != nil {
		return user, nil
	}

	v, err, _ := s.group.Do(token, func() (interface{}, error) {
		// Coalesced peers share this one flight; the first caller
		// cancelling must not fail everyone else's lookup.
		return s.fetchAndStore(context.WithoutCancel(ctx), token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.User), nil
}

func (s *Service) fetchAndStore(ctx context.Context, token string) (*model.User, error) {
	user, err := s.origin.FetchCurrentUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if user.ID == 0 {
		return nil, ErrUnauthenticated
	}

	if err := s.cache.StoreUser(ctx, user, token); err != nil {
		s.logger.Warn("failed to cache user", zap.Error(err))
	}

	perms, err := s.origin.FetchPermissions(ctx, user.ID, token)
	if err != nil {
		// The user is authenticated; permission fetch failure only means
		// access resolution will fail closed until the next attempt.
		s.logger.Warn("failed to fetch permissions",
			zap.String("user", user.ID.String()),
			zap.Error(err),
		)
		return user, nil
	}
	if err := s.cache.StorePermissions(ctx, user.ID, perms); err != nil {
		s.logger.Warn("failed to cache permissions",
			zap.String("user", user.ID.String()),
			zap.Error(err),
		)
	}
	return user, nil
}
