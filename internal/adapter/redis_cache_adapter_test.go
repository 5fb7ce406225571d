package adapter

import (
	"context"
	"testing"
	"time"

	"papergrade/internal/domain"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisCacheAdapterGet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheAdapter(client)
	ctx := context.Background()

	t.Run("hit", func(t *testing.T) {
		mock.ExpectGet("papergrade:embedding:openai:abc").SetVal("cached-value")

		val, err := cache.Get(ctx, "papergrade:embedding:openai:abc")
		require.NoError(t, err)
		assert.Equal(t, "cached-value", val)
	})

	t.Run("miss translates to ErrCacheMiss", func(t *testing.T) {
		mock.ExpectGet("missing-key").RedisNil()

		_, err := cache.Get(ctx, "missing-key")
		assert.ErrorIs(t, err, domain.ErrCacheMiss)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheAdapterSet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheAdapter(client)

	mock.ExpectSet("key", "value", time.Hour).SetVal("OK")

	err := cache.Set(context.Background(), "key", "value", time.Hour)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheAdapterDelete(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheAdapter(client)

	mock.ExpectDel("key").SetVal(1)

	err := cache.Delete(context.Background(), "key")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisCacheAdapterPing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	cache := NewRedisCacheAdapter(client)

	mock.ExpectPing().SetVal("PONG")

	err := cache.Ping(context.Background())
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
