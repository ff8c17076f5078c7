package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndGet(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), time.Second))

	val, ok, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value1", string(val))

	_, ok, err = c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	c := New()
	ctx := context.Background()
	clock := time.Unix(0, 0)
	c.now = func() time.Time { return clock }

	require.NoError(t, c.Set(ctx, "key1", []byte("v"), 100*time.Millisecond))
	clock = clock.Add(100 * time.Millisecond)

	_, ok, _ := c.Get(ctx, "key1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entries are dropped on read")
}

func TestDelete(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "key1", []byte("v"), time.Second))
	require.NoError(t, c.Delete(ctx, "key1"))
	_, ok, _ := c.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestInvalidate(t *testing.T) {
	c := New()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "kpis:1", []byte("a"), time.Second))
	require.NoError(t, c.Set(ctx, "kpis:2", []byte("b"), time.Second))
	require.NoError(t, c.Set(ctx, "tickets:1", []byte("c"), time.Second))

	require.NoError(t, c.Invalidate(ctx, "kpis:"))

	_, ok1, _ := c.Get(ctx, "kpis:1")
	_, ok2, _ := c.Get(ctx, "kpis:2")
	_, ok3, _ := c.Get(ctx, "tickets:1")
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestSetCopiesValue(t *testing.T) {
	c := New()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, time.Second))
	buf[0] = 'x'
	got, _, _ := c.Get(ctx, "k")
	assert.Equal(t, "abc", string(got))
}
