package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestStore_SetGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", "v1"))
	require.NoError(t, s.Set(ctx, "k", "v2"))

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestStore_TTLExpires(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	s := New(time.Minute).WithClock(c.now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "detectedIp", "203.0.113.7"))

	c.t = c.t.Add(59 * time.Second)
	_, ok, _ := s.Get(ctx, "detectedIp")
	assert.True(t, ok)

	c.t = c.t.Add(time.Second)
	_, ok, _ = s.Get(ctx, "detectedIp")
	assert.False(t, ok)
}

func TestStore_Sweep(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	s := New(time.Second).WithClock(c.now)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "a", "1"))
	require.NoError(t, s.Set(ctx, "b", "2"))
	assert.Zero(t, s.Sweep())

	c.t = c.t.Add(2 * time.Second)
	assert.Equal(t, 2, s.Sweep())
}
