package cache

import (
	"context"
	"testing"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "orgrag:chat:42:history", historyKey(42))
	assert.Equal(t, "orgrag:chat:42:dirty", dirtyKey(42))
}

func TestNewHistoryCache_Defaults(t *testing.T) {
	c := NewHistoryCache(nil, 0, -1)
	assert.Equal(t, 60*time.Second, c.historyTTL)
	assert.Equal(t, 5*time.Second, c.dirtyMarkerTTL)
}

func TestHistoryCache_UnreachableServer(t *testing.T) {
	client := redisv9.NewClient(&redisv9.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewHistoryCache(client, time.Minute, time.Second)

	_, hit, err := c.GetHistory(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, hit)

	_, err = c.IsDirty(context.Background(), 1)
	assert.Error(t, err)
}
