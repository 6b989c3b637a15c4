package cache

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryClientGetSetDelete(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	_, err := c.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, c.Set(ctx, "a", []byte("one"), time.Minute))
	val, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), val)

	require.NoError(t, c.Delete(ctx, "a"))
	_, err = c.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientExpiry(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "short", []byte("x"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	_, err := c.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestMemoryClientDeleteByPrefix(t *testing.T) {
	c := NewMemoryClient(10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "emb:q:1", []byte("x"), time.Minute))
	require.NoError(t, c.Set(ctx, "emb:q:2", []byte("y"), time.Minute))
	require.NoError(t, c.Set(ctx, "other", []byte("z"), time.Minute))

	require.NoError(t, c.DeleteByPrefix(ctx, "emb:q:"))
	_, err := c.Get(ctx, "emb:q:1")
	assert.ErrorIs(t, err, ErrCacheMiss)
	val, err := c.Get(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, []byte("z"), val)
}

func TestMemoryClientCloseStopsCleanup(t *testing.T) {
	before := runtime.NumGoroutine()
	clients := make([]*MemoryClient, 20)
	for i := range clients {
		clients[i] = NewMemoryClient(10)
	}
	for _, c := range clients {
		require.NoError(t, c.Close())
		// Close twice must not panic.
		require.NoError(t, c.Close())
	}

	deadline := time.After(5 * time.Second)
	for runtime.NumGoroutine() > before+2 {
		select {
		case <-deadline:
			t.Fatalf("cleanup goroutines did not exit, %d running", runtime.NumGoroutine())
		case <-time.After(10 * time.Millisecond):
		}
	}
}
