// Package storage provides the key/value stores that stand in for a
// browser's durable and session-scoped storage. Each visitor gets its own
// namespace via Scoped.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AlexKimmel/WebShield/internal/config"
	"github.com/AlexKimmel/WebShield/internal/storage/memory"
	"github.com/AlexKimmel/WebShield/internal/storage/redisstore"
	"github.com/AlexKimmel/WebShield/internal/storage/sqlite"
)

type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

type scoped struct {
	Store
	prefix string
}

// Scoped returns a view of s whose keys live under scope. Closing the view
// does not close s.
func Scoped(s Store, scope string) Store {
	return &scoped{Store: s, prefix: strings.TrimSuffix(scope, ":") + ":"}
}

func (s *scoped) Get(ctx context.Context, key string) (string, bool, error) {
	return s.Store.Get(ctx, s.prefix+key)
}

func (s *scoped) Set(ctx context.Context, key, value string) error {
	return s.Store.Set(ctx, s.prefix+key, value)
}

func (s *scoped) Close() error { return nil }

// Backends bundles the durable and the session-scoped store.
type Backends struct {
	Durable Store
	Session Store
	closers []func() error
}

func (b *Backends) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const sweepEvery = time.Minute

// Open builds both stores on the configured backend. Background cleanup
// stops when ctx is done.
func Open(ctx context.Context, cfg config.Storage) (*Backends, error) {
	switch cfg.Backend {
	case "", "memory":
		durable := memory.New(cfg.DurableTTL())
		session := memory.New(cfg.SessionTTL())
		durable.StartJanitor(ctx, sweepEvery)
		session.StartJanitor(ctx, sweepEvery)
		return &Backends{Durable: durable, Session: session}, nil

	case "redis":
		base, err := redisstore.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			redisstore.WithPrefix(cfg.Redis.Prefix),
			redisstore.WithTTL(cfg.DurableTTL()),
		)
		if err != nil {
			return nil, err
		}
		return &Backends{
			Durable: base,
			Session: base.WithTTL(cfg.SessionTTL()),
			closers: []func() error{base.Close},
		}, nil

	case "sqlite":
		base, err := sqlite.Open(cfg.SQLite.Path, cfg.DurableTTL())
		if err != nil {
			return nil, err
		}
		go sweepSQLite(ctx, base)
		return &Backends{
			Durable: base,
			Session: base.WithTTL(cfg.SessionTTL()),
			closers: []func() error{base.Close},
		}, nil

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func sweepSQLite(ctx context.Context, s *sqlite.Store) {
	t := time.NewTicker(sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = s.Sweep(ctx)
		}
	}
}
