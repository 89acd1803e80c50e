package ratelimit

import "time"

// Policy describes a fixed-window budget. A zero MaxRequests or Window
// disables limiting.
type Policy struct {
	MaxRequests int           // requests admitted per window
	Window      time.Duration // window length
}

func (p Policy) Unlimited() bool {
	return p.MaxRequests <= 0 || p.Window <= 0
}

// State is the persisted counter of one visitor.
type State struct {
	RequestCount int
	WindowStart  time.Time
}

type Decision struct {
	Allowed   bool
	Reset     bool      // the window rolled over on this request
	Limit     int       // MaxRequests of the applied policy
	Remaining int       // requests left in the window after this one (min 0)
	ResetAt   time.Time // end of the current window
}

// Apply runs one request through the fixed-window limiter and returns the
// state to persist. A rejected request leaves the state untouched.
//
// The window is fixed, not sliding: a burst straddling a boundary can admit
// up to 2*MaxRequests requests.
func Apply(s State, p Policy, now time.Time) (State, Decision) {
	if p.Unlimited() {
		s.RequestCount++
		if s.WindowStart.IsZero() {
			s.WindowStart = now
		}
		return s, Decision{Allowed: true}
	}

	if s.WindowStart.IsZero() || s.RequestCount < 0 {
		s = State{WindowStart: now}
	}

	reset := false
	if now.Sub(s.WindowStart) > p.Window {
		s = State{WindowStart: now}
		reset = true
	} else if s.RequestCount >= p.MaxRequests {
		return s, Decision{
			Allowed: false,
			Limit:   p.MaxRequests,
			ResetAt: s.WindowStart.Add(p.Window),
		}
	}

	s.RequestCount++

	return s, Decision{
		Allowed:   true,
		Reset:     reset,
		Limit:     p.MaxRequests,
		Remaining: max(p.MaxRequests-s.RequestCount, 0),
		ResetAt:   s.WindowStart.Add(p.Window),
	}
}
