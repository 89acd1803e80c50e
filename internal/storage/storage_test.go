package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/WebShield/internal/config"
)

func TestScoped_IsolatesVisitors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Open(ctx, config.Default().Storage)
	require.NoError(t, err)
	defer b.Close()

	alice := Scoped(b.Durable, "visitor:alice")
	bob := Scoped(b.Durable, "visitor:bob:")

	require.NoError(t, alice.Set(ctx, "requestCount", "3"))

	_, ok, err := bob.Get(ctx, "requestCount")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := b.Durable.Get(ctx, "visitor:alice:requestCount")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	assert.NoError(t, alice.Close())
}

func TestOpen_SQLite(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Backend = "sqlite"
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "ws.db")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b, err := Open(ctx, cfg)
	require.NoError(t, err)

	require.NoError(t, b.Session.Set(ctx, "session:s1:detectedIp", "192.0.2.10"))
	v, ok, err := b.Durable.Get(ctx, "session:s1:detectedIp")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "192.0.2.10", v)

	assert.NoError(t, b.Close())
}

func TestOpen_UnknownBackend(t *testing.T) {
	cfg := config.Default().Storage
	cfg.Backend = "etcd"
	_, err := Open(context.Background(), cfg)
	assert.Error(t, err)
}
