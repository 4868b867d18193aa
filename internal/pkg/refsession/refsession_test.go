package refsession

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, 30*time.Minute)

	return store, mr, func() {
		client.Close()
		mr.Close()
	}
}

func TestStore_CaptureAndConsume(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Capture(ctx, 42)
	require.NoError(t, err)
	assert.Len(t, token, 48)

	sponsorID, err := store.Consume(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), sponsorID)

	// 第二次消费失败
	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStore_ConsumeExpired(t *testing.T) {
	store, mr, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	token, err := store.Capture(ctx, 1)
	require.NoError(t, err)

	mr.FastForward(31 * time.Minute)

	_, err = store.Consume(ctx, token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStore_ConsumeUnknown(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()

	_, err := store.Consume(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = store.Consume(context.Background(), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStore_TokensAreUnique(t *testing.T) {
	store, _, cleanup := setupStore(t)
	defer cleanup()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		token, err := store.Capture(ctx, int64(i))
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
