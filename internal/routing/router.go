package routing

import (
	"context"
	"net/http"
	"strings"

	"github.com/AlexKimmel/WebShield/internal/config"
)

// Route overrides shield settings for a path prefix. Zero limits inherit the
// global shield settings.
type Route struct {
	ID            string
	Methods       map[string]struct{} // empty means any method
	Prefix        string
	Disabled      bool
	MaxRequests   int
	RiskThreshold float64
}

type Router struct {
	routes []*Route
}

func New() *Router {
	return &Router{}
}

// FromConfig builds a router from the configured route list, in order.
func FromConfig(routes []config.Routes) *Router {
	r := New()
	for _, rc := range routes {
		rt := &Route{
			ID:            rc.ID,
			Prefix:        rc.Match.PathPrefix,
			Disabled:      rc.Disabled,
			MaxRequests:   rc.MaxRequests,
			RiskThreshold: rc.RiskThreshold,
		}
		if len(rc.Match.Methods) > 0 {
			rt.Methods = make(map[string]struct{}, len(rc.Match.Methods))
			for _, m := range rc.Match.Methods {
				rt.Methods[strings.ToUpper(m)] = struct{}{}
			}
		}
		r.Add(rt)
	}
	return r
}

func (r *Router) Add(rt *Route) {
	r.routes = append(r.routes, rt)
}

func (r *Router) Routes() []*Route {
	return r.routes
}

// Match returns the first route whose method set and path prefix match.
func (r *Router) Match(method string, path string) (*Route, bool) {
	m := strings.ToUpper(method)
	for _, rt := range r.routes {
		if len(rt.Methods) > 0 {
			if _, ok := rt.Methods[m]; !ok {
				continue
			}
		}
		prefix := strings.TrimSuffix(strings.TrimSpace(rt.Prefix), "/")
		if prefix == "" {
			return rt, true
		}

		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return rt, true
		}
	}
	return nil, false
}

// --- context helpers ---
type ctxKey int

const keyRoute ctxKey = 0

func WithRoute(r *http.Request, rt *Route) *http.Request {
	ctx := context.WithValue(r.Context(), keyRoute, rt)
	return r.WithContext(ctx)
}

func RouteFrom(r *http.Request) (*Route, bool) {
	v := r.Context().Value(keyRoute)
	if v == nil {
		return nil, false
	}
	rt, ok := v.(*Route)
	return rt, ok
}
