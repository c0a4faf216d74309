package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Needs a disposable Redis: REDIS_URL=redis://localhost:6379/15 go test ./internal/services/
func TestRedisSendLimiter(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	rdb, err := NewRedisClient(url)
	require.NoError(t, err)
	defer rdb.Close()

	ctx := context.Background()
	l := NewRedisSendLimiter(rdb, 3, time.Hour)
	phone := "test-" + uuid.NewString()
	defer rdb.Del(ctx, l.prefix+phone)

	for i := 0; i < 3; i++ {
		_, ok, err := l.Allow(ctx, phone)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	retry, ok, err := l.Allow(ctx, phone)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, 59*time.Minute)

	// one undo for the refused call and one for a failed dispatch
	require.NoError(t, l.Undo(ctx, phone))
	require.NoError(t, l.Undo(ctx, phone))
	_, ok, err = l.Allow(ctx, phone)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRedisClientRejectsBadURL(t *testing.T) {
	_, err := NewRedisClient("http://not-redis")
	assert.Error(t, err)
}
