package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/socialsignin/auth-service/internal/models"
	"github.com/socialsignin/auth-service/pkg/logger"
	"github.com/socialsignin/auth-service/pkg/metrics"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidIdentity is returned for an unknown provider or an empty provider id.
var ErrInvalidIdentity = errors.New("invalid provider identity")

// resolveTimeout bounds a shared lookup/insert once it no longer follows the
// context of the request that started it.
const resolveTimeout = 10 * time.Second

// Service resolves provider identities to users.
type Service struct {
	repo  UserRepository
	group singleflight.Group
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// Resolve finds the user bound to the provider identity, creating it on first
// login. An existing user is returned unmodified. Concurrent calls for the same
// identity within this process share one lookup/insert; across processes the
// store's unique index rejects the losing insert with ErrDuplicateIdentity.
// A caller that gives up only abandons its own wait; the shared work carries on
// for the callers still waiting.
func (s *Service) Resolve(ctx context.Context, id models.ProviderIdentity) (*models.User, error) {
	if models.ProviderField(id.Provider) == "" || id.ProviderID == "" {
		return nil, ErrInvalidIdentity
	}
	key := models.ProviderField(id.Provider) + ":" + id.ProviderID
	ch := s.group.DoChan(key, func() (interface{}, error) {
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()
		return s.findOrCreate(wctx, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		u := *res.Val.(*models.User)
		return &u, nil
	}
}

func (s *Service) findOrCreate(ctx context.Context, id models.ProviderIdentity) (*models.User, error) {
	u, err := s.repo.FindByProvider(ctx, id.Provider, id.ProviderID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	nu := &models.User{Username: id.Username}
	nu.SetProviderID(id.Provider, id.ProviderID)
	if err := s.repo.Create(ctx, nu); err != nil {
		if errors.Is(err, ErrDuplicateIdentity) {
			return nil, fmt.Errorf("create %s user %s: %w", id.Provider, id.ProviderID, err)
		}
		return nil, err
	}
	metrics.UsersCreated.WithLabelValues(id.Provider).Inc()
	logger.Infof("created user %s for %s id %s", nu.ID, id.Provider, id.ProviderID)
	return nu, nil
}

// GetByID returns the user with the given internal id or ErrNotFound.
func (s *Service) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
