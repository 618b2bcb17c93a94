package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisStore(client)
}

func TestShouldNotify_FirstClaimWins(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)

	ok, err := store.ShouldNotify(ctx, "bounce:mydomain.com:hard", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ShouldNotify(ctx, "bounce:mydomain.com:hard", time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestShouldNotify_KeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	_, store := newTestStore(t)

	ok, err := store.ShouldNotify(ctx, "bounce:mydomain.com:hard", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ShouldNotify(ctx, "bounce:otherdomain.com:hard", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "a different domain claims its own window")

	ok, err = store.ShouldNotify(ctx, "bounce:mydomain.com:soft", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok, "a different bounce class claims its own window")
}

func TestShouldNotify_WindowExpires(t *testing.T) {
	ctx := context.Background()
	mr, store := newTestStore(t)

	ok, err := store.ShouldNotify(ctx, "bounce:mydomain.com:hard", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)

	ok, err = store.ShouldNotify(ctx, "bounce:mydomain.com:hard", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired window can be claimed again")
}
