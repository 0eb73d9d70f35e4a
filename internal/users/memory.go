package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/socialsignin/auth-service/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository is an in-memory UserRepository with the same uniqueness
// rules as the Mongo indexes. Used by tests and local runs without a database.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.User
	byKey map[string]string // "<field>:<providerId>" -> user id
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: map[string]*models.User{}, byKey: map[string]string{}}
}

func memKey(provider, providerID string) string {
	return models.ProviderField(provider) + ":" + providerID
}

func (m *MemoryRepository) FindByProvider(ctx context.Context, provider, providerID string) (*models.User, error) {
	if models.ProviderField(provider) == "" {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byKey[memKey(provider, providerID)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.byID[id]
	return &u, nil
}

func (m *MemoryRepository) Create(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, p := range []string{models.ProviderGoogle, models.ProviderTwitter, models.ProviderGitHub} {
		if id := u.ProviderID(p); id != "" {
			k := memKey(p, id)
			if _, taken := m.byKey[k]; taken {
				return ErrDuplicateIdentity
			}
			keys = append(keys, k)
		}
	}
	if u.ID == "" {
		u.ID = primitive.NewObjectID().Hex()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	stored := *u
	m.byID[u.ID] = &stored
	for _, k := range keys {
		m.byKey[k] = u.ID
	}
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryRepository) Ping(ctx context.Context) error { return nil }

// Len returns the number of stored users.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}

// Delete removes a user; the service itself never deletes users.
func (m *MemoryRepository) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return
	}
	for _, p := range []string{models.ProviderGoogle, models.ProviderTwitter, models.ProviderGitHub} {
		if pid := u.ProviderID(p); pid != "" {
			delete(m.byKey, memKey(p, pid))
		}
	}
	delete(m.byID, id)
}
