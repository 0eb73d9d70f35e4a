package sessions

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/socialsignin/auth-service/internal/models"
	"github.com/socialsignin/auth-service/internal/users"
	"github.com/socialsignin/auth-service/pkg/metrics"
)

// DefaultTTL is the session lifetime: one week.
const DefaultTTL = 7 * 24 * time.Hour

// UserLookup loads users by internal id.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Service wraps repository operations with session semantics: serializing a
// user to a session id and rehydrating the user from it.
type Service struct {
	repo  Repository
	users UserLookup
	ttl   time.Duration
	now   func() time.Time
}

func NewService(r Repository, u UserLookup, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{repo: r, users: u, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// TTL returns the configured session lifetime.
func (s *Service) TTL() time.Duration { return s.ttl }

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func (s *Service) newSession() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &Session{ID: id, CreatedAt: now, ExpiresAt: now.Add(s.ttl)}, nil
}

// Serialize stores a fresh session whose payload is the user's id and returns the session id.
func (s *Service) Serialize(ctx context.Context, u *models.User) (string, error) {
	if u == nil || u.ID == "" {
		return "", errors.New("serialize: user without id")
	}
	sess, err := s.newSession()
	if err != nil {
		return "", err
	}
	sess.UserID = u.ID
	if err := s.repo.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("serialize: %w", err)
	}
	metrics.Sessions.WithLabelValues("created").Inc()
	return sess.ID, nil
}

// Load returns the live session for id, or nil when it is unknown or expired.
func (s *Service) Load(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, nil
	}
	sess, err := s.repo.Get(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	if s.now().After(sess.ExpiresAt) {
		_ = s.repo.Delete(ctx, id)
		metrics.Sessions.WithLabelValues("expired").Inc()
		return nil, nil
	}
	return sess, nil
}

// Deserialize resolves a session id to its user. Unknown or expired sessions
// and sessions pointing at a missing user yield (nil, nil): the request is
// simply unauthenticated.
func (s *Service) Deserialize(ctx context.Context, id string) (*models.User, error) {
	sess, err := s.Load(ctx, id)
	if err != nil || sess == nil {
		return nil, err
	}
	return s.UserFor(ctx, sess)
}

// UserFor loads the user bound to sess, or nil for an anonymous session.
func (s *Service) UserFor(ctx context.Context, sess *Session) (*models.User, error) {
	if !sess.Authenticated() {
		return nil, nil
	}
	u, err := s.users.GetByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			metrics.Sessions.WithLabelValues("miss").Inc()
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// Begin records a pending handshake secret for provider on current, creating
// an anonymous session when current is nil. The saved session is returned.
func (s *Service) Begin(ctx context.Context, current *Session, provider, secret string) (*Session, error) {
	sess := current
	if sess == nil {
		var err error
		if sess, err = s.newSession(); err != nil {
			return nil, err
		}
	}
	if sess.Handshake == nil {
		sess.Handshake = map[string]string{}
	}
	sess.Handshake[provider] = secret
	if err := s.repo.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("begin handshake: %w", err)
	}
	return sess, nil
}

// TakeHandshake returns and clears the pending secret for provider.
func (s *Service) TakeHandshake(ctx context.Context, sess *Session, provider string) (string, error) {
	if sess == nil {
		return "", nil
	}
	secret, ok := sess.Handshake[provider]
	if !ok {
		return "", nil
	}
	delete(sess.Handshake, provider)
	if err := s.repo.Save(ctx, sess); err != nil {
		return "", fmt.Errorf("consume handshake: %w", err)
	}
	return secret, nil
}

// Touch pushes the expiry of sess forward by the TTL (rolling sessions).
func (s *Service) Touch(ctx context.Context, sess *Session) error {
	sess.ExpiresAt = s.now().Add(s.ttl)
	return s.repo.Save(ctx, sess)
}

// Destroy deletes the session.
func (s *Service) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	metrics.Sessions.WithLabelValues("destroyed").Inc()
	return nil
}

// Ping checks the backing store.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
