package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Keys under which the counter lives in the visitor's durable storage.
const (
	KeyRequestCount     = "requestCount"
	KeyFirstRequestTime = "firstRequestTime"
)

// KV is the slice of a key/value store the limiter needs.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Load reads the persisted state. Missing, unreadable or unparseable values
// fall back to a zero count and a window starting now. A count without a valid
// window start is discarded since no window could ever expire it. stored
// reports whether a valid window start was found; when false, Save must
// write it.
func Load(ctx context.Context, kv KV, now time.Time) (s State, stored bool) {
	s = State{WindowStart: now}

	if v, ok, err := kv.Get(ctx, KeyFirstRequestTime); err == nil && ok {
		if ms, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil && ms > 0 {
			s.WindowStart = time.UnixMilli(ms)
			stored = true
		}
	}
	if !stored {
		return s, false
	}

	if v, ok, err := kv.Get(ctx, KeyRequestCount); err == nil && ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			s.RequestCount = n
		}
	}

	return s, true
}

// Save persists the count and, when writeStart is set, the window start.
func Save(ctx context.Context, kv KV, s State, writeStart bool) error {
	if writeStart {
		ms := strconv.FormatInt(s.WindowStart.UnixMilli(), 10)
		if err := kv.Set(ctx, KeyFirstRequestTime, ms); err != nil {
			return fmt.Errorf("save %s: %w", KeyFirstRequestTime, err)
		}
	}
	if err := kv.Set(ctx, KeyRequestCount, strconv.Itoa(s.RequestCount)); err != nil {
		return fmt.Errorf("save %s: %w", KeyRequestCount, err)
	}
	return nil
}
