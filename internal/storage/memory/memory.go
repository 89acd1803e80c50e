package memory

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	mu      sync.Mutex
	value   string
	expires time.Time // zero means never
}

// Store keeps values in process memory. Entries written with a positive TTL
// expire; a janitor goroutine (StartJanitor) drops them for good.
type Store struct {
	now     func() time.Time
	ttl     time.Duration
	entries sync.Map
}

func New(ttl time.Duration) *Store {
	return &Store{
		now: time.Now,
		ttl: ttl,
	}
}

// WithClock replaces the clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error { return nil }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s.entries.Load(key)
	if !ok {
		return "", false, nil
	}

	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.expires.IsZero() && !s.now().Before(e.expires) {
		return "", false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	var expires time.Time
	if s.ttl > 0 {
		expires = s.now().Add(s.ttl)
	}

	v, _ := s.entries.LoadOrStore(key, &entry{})
	e := v.(*entry)

	e.mu.Lock()
	e.value = value
	e.expires = expires
	e.mu.Unlock()
	return nil
}

// Sweep removes expired entries and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.now()
	n := 0
	s.entries.Range(func(k, v any) bool {
		e := v.(*entry)
		e.mu.Lock()
		expired := !e.expires.IsZero() && !now.Before(e.expires)
		e.mu.Unlock()
		if expired {
			s.entries.Delete(k)
			n++
		}
		return true
	})
	return n
}

// StartJanitor sweeps periodically until ctx is done.
func (s *Store) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 || s.ttl <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
}
