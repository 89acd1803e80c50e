// Package gatekeeper decides, once per page load, whether a visitor may see
// the page. It throttles repeated loads with a fixed-window counter kept in
// the visitor's durable storage, resolves the visitor's address and asks a
// reputation service how risky that address is.
//
// External failures never block a visitor: detection and reputation errors
// resolve to "allow". Only an exhausted request budget or a risk score at or
// above the threshold redirects to the forbidden page.
package gatekeeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/WebShield/internal/lookup"
	"github.com/AlexKimmel/WebShield/internal/ratelimit"
)

// KeyDetectedIP is the session storage key of the cached detected address.
const KeyDetectedIP = "detectedIp"

// Storage is a string key/value store. Read errors are treated as absent
// values and write errors are logged.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Page is the host environment of one invocation.
type Page struct {
	Path     string  // current location path
	Durable  Storage // survives across sessions; holds the request counter, nil skips counting
	Session  Storage // cleared when the browsing session ends
	Redirect func(location string)
}

type AddressDetector interface {
	Detect(ctx context.Context) (string, error)
}

type ReputationSource interface {
	Lookup(ctx context.Context, ip string) (lookup.Result, error)
}

type Gatekeeper struct {
	addresses  AddressDetector
	reputation ReputationSource
	now        func() time.Time
}

type Option func(*Gatekeeper)

func WithClock(now func() time.Time) Option {
	return func(g *Gatekeeper) { g.now = now }
}

// New returns a Gatekeeper. addresses may be nil when every invocation
// supplies Config.IP.
func New(addresses AddressDetector, reputation ReputationSource, opts ...Option) *Gatekeeper {
	g := &Gatekeeper{
		addresses:  addresses,
		reputation: reputation,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Run performs one invocation. All effects go through page; the returned
// Outcome is informational. Run imposes no timeout of its own, callers bound
// it through ctx.
func (g *Gatekeeper) Run(ctx context.Context, page Page, cfg Config) Outcome {
	cfg = cfg.withDefaults()
	log := zerolog.Ctx(ctx)

	// avoids a redirect loop
	if page.Path == cfg.ForbiddenPage {
		return OnForbiddenPage
	}

	if page.Durable == nil {
		log.Debug().Msg("no durable storage, request counting skipped")
	} else if !g.admit(ctx, page, cfg) {
		page.redirect(cfg.ForbiddenPage)
		return RateLimited
	}

	ip, ok := g.resolveAddress(ctx, page, cfg)
	if !ok {
		return AddressUnavailable
	}

	res, err := g.reputation.Lookup(ctx, ip)
	switch {
	case errors.Is(err, lookup.ErrNotFound):
		log.Debug().Str("ip", ip).Msg("no reputation data")
		return NoData
	case err != nil:
		log.Warn().Err(err).Str("ip", ip).Msg("reputation lookup failed, skipping block")
		return ReputationUnavailable
	case res.IsBot():
		log.Debug().Str("ip", ip).RawJSON("bot_info", res.BotInfo).Msg("known bot")
		return KnownBot
	case res.AverageRisk >= cfg.RiskThreshold:
		log.Info().
			Str("ip", ip).
			Float64("risk", res.AverageRisk).
			Float64("threshold", cfg.RiskThreshold).
			Msg("blocking risky address")
		page.redirect(cfg.ForbiddenPage)
		return HighRisk
	default:
		return Allowed
	}
}

// admit runs the fixed-window counter kept in page.Durable.
func (g *Gatekeeper) admit(ctx context.Context, page Page, cfg Config) bool {
	log := zerolog.Ctx(ctx)
	now := g.now()
	policy := ratelimit.Policy{MaxRequests: cfg.MaxRequests, Window: cfg.Window}

	state, stored := ratelimit.Load(ctx, page.Durable, now)
	next, dec := ratelimit.Apply(state, policy, now)
	if !dec.Allowed {
		log.Warn().
			Int("count", state.RequestCount).
			Int("max", cfg.MaxRequests).
			Time("reset_at", dec.ResetAt).
			Msg("request budget exhausted")
		return false
	}
	if err := ratelimit.Save(ctx, page.Durable, next, dec.Reset || !stored); err != nil {
		log.Warn().Err(err).Msg("persist request counter")
	}
	return true
}

// resolveAddress prefers the configured address, then the session cache,
// then the detection service.
func (g *Gatekeeper) resolveAddress(ctx context.Context, page Page, cfg Config) (string, bool) {
	log := zerolog.Ctx(ctx)

	if cfg.IP != "" {
		return cfg.IP, true
	}

	if page.Session != nil {
		if ip, ok, err := page.Session.Get(ctx, KeyDetectedIP); err == nil && ok && ip != "" {
			return ip, true
		}
	}

	if g.addresses == nil {
		log.Warn().Msg("no address configured and detection disabled")
		return "", false
	}

	ip, err := g.addresses.Detect(ctx)
	if err != nil {
		if errors.Is(err, lookup.ErrNotFound) {
			log.Debug().Msg("address detection returned no data")
		} else {
			log.Warn().Err(err).Msg("failed to detect address")
		}
		return "", false
	}

	if page.Session != nil {
		if err := page.Session.Set(ctx, KeyDetectedIP, ip); err != nil {
			log.Warn().Err(err).Msg("cache detected address")
		}
	}
	return ip, true
}

func (p Page) redirect(location string) {
	if p.Redirect != nil {
		p.Redirect(location)
	}
}
