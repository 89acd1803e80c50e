package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/WebShield/internal/auth"
	"github.com/AlexKimmel/WebShield/internal/gatekeeper"
	"github.com/AlexKimmel/WebShield/internal/routing"
	"github.com/AlexKimmel/WebShield/internal/storage"
)

const (
	// VisitorCookie scopes the durable store; it outlives the browser session.
	VisitorCookie = "ws_vid"
	// SessionCookie has no Max-Age, so the browser drops it when the session ends.
	SessionCookie = "ws_sid"

	visitorMaxAge = 365 * 24 * 60 * 60
)

// ShieldOptions configures Shield. Every GET or HEAD that is not skipped
// counts as a page load, stylesheets and images included; put asset prefixes
// on a disabled route to exempt them.
type ShieldOptions struct {
	// Config is the base gatekeeper configuration; routes may override it.
	Config gatekeeper.Config
	// AddressSource "request" takes the visitor address from the connection,
	// "detect" leaves it to the detection service.
	AddressSource     string
	TrustForwardedFor bool
	// Timeout bounds one gatekeeper run. Zero means no bound.
	Timeout       time.Duration
	Durable       storage.Store
	Session       storage.Store
	SecureCookies bool
	Skip          map[string]struct{}
	// SkipSubresources lets requests whose Sec-Fetch-Dest names a subresource
	// (image, script, style...) through unchecked. The header is set by the
	// client, so a scripted client can use it to bypass the shield.
	SkipSubresources bool
	OnOutcome        func(routeID string, out gatekeeper.Outcome)
}

// Shield runs the gatekeeper once per page load. A redirect decided by the
// gatekeeper becomes a 302 to the forbidden page; otherwise next serves the page.
func Shield(gk *gatekeeper.Gatekeeper, opts ShieldOptions) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// ops endpoints and non-page requests
			if _, ok := opts.Skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}
			if opts.SkipSubresources && !isPageLoad(r) {
				next.ServeHTTP(w, r)
				return
			}
			if _, trusted := auth.KeyIDFrom(r.Context()); trusted {
				next.ServeHTTP(w, r)
				return
			}

			cfg := opts.Config
			routeID := "default"
			if rt, ok := routing.RouteFrom(r); ok && rt != nil {
				if rt.Disabled {
					next.ServeHTTP(w, r)
					return
				}
				routeID = rt.ID
				if rt.MaxRequests > 0 {
					cfg.MaxRequests = rt.MaxRequests
				}
				if rt.RiskThreshold > 0 {
					cfg.RiskThreshold = rt.RiskThreshold
				}
			}
			if cfg.IP == "" && opts.AddressSource == "request" {
				cfg.IP = ClientIP(r, opts.TrustForwardedFor)
			}

			visitor, known := ensureID(w, r, VisitorCookie, visitorMaxAge, opts.SecureCookies)
			session, _ := ensureID(w, r, SessionCookie, 0, opts.SecureCookies)

			// clients that never return the visitor cookie share a budget per address
			durableScope := "visitor:" + visitor
			if !known {
				durableScope = "addr:" + ClientIP(r, opts.TrustForwardedFor)
			}

			ctx := r.Context()
			logger := zerolog.Ctx(ctx).With().Str("visitor", visitor).Str("route", routeID).Logger()
			ctx = logger.WithContext(ctx)
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}

			var target string
			page := gatekeeper.Page{
				Path:    r.URL.Path,
				Durable: storage.Scoped(opts.Durable, durableScope),
				Session: storage.Scoped(opts.Session, "session:"+session),
				Redirect: func(location string) {
					if target == "" {
						target = location
					}
				},
			}

			out := gk.Run(ctx, page, cfg)
			if opts.OnOutcome != nil {
				opts.OnOutcome(routeID, out)
			}

			if target != "" {
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, target, http.StatusFound)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isPageLoad reports false for fetches the browser marks as subresources.
func isPageLoad(r *http.Request) bool {
	switch r.Header.Get("Sec-Fetch-Dest") {
	case "", "document", "iframe", "frame":
		return true
	default:
		return false
	}
}

// ensureID returns the uuid stored in cookie name, issuing a new one when
// the cookie is missing or malformed. known is false for a newly issued id.
func ensureID(w http.ResponseWriter, r *http.Request, name string, maxAge int, secure bool) (id string, known bool) {
	if c, err := r.Cookie(name); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), true
		}
	}

	id = uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    id,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	return id, false
}
