package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newMiniredisRepo(t *testing.T) (*mr.Miniredis, *RedisRepository) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	return m, NewRedisRepository(client, "test:session:")
}

func TestRedisRepository_SaveGetDelete(t *testing.T) {
	m, repo := newMiniredisRepo(t)
	ctx := context.Background()
	s := &Session{
		ID:        "s1",
		UserID:    "u-1",
		Handshake: map[string]string{"github": "state-1"},
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	require.NoError(t, repo.Save(ctx, s))
	require.True(t, m.Exists("test:session:s1"))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "u-1", got.UserID)
	require.Equal(t, "state-1", got.Handshake["github"])

	// overwrite keeps a single key
	s.UserID = "u-2"
	require.NoError(t, repo.Save(ctx, s))
	got, err = repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "u-2", got.UserID)

	require.NoError(t, repo.Delete(ctx, "s1"))
	got2, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got2)
	require.NoError(t, repo.Ping(ctx))
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, repo := newMiniredisRepo(t)
	ctx := context.Background()
	s := &Session{
		ID:        "s2",
		UserID:    "u-2",
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(2 * time.Second),
	}

	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(3 * time.Second)

	got2, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.Nil(t, got2)
}
