package database

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "listing:textbook:1", "{}", 0).Err())
	_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Get(ctx, "listing:textbook:1")
		return nil
	})
	require.NoError(t, err)

	err = client.Get(ctx, "missing").Err()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisClient(context.Background(), RedisConfig{Addr: addr})
	assert.Error(t, err)
}

func TestRedisErr(t *testing.T) {
	assert.NoError(t, redisErr(redis.Nil))
	boom := errors.New("boom")
	assert.Equal(t, boom, redisErr(boom))
}
