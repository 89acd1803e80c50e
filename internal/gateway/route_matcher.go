package gateway

import (
	"net/http"

	"github.com/AlexKimmel/WebShield/internal/routing"
)

// RouteMatcher stores the matching route, if any, in the request context.
// Unmatched requests pass through and get the global shield settings.
func RouteMatcher(rr *routing.Router) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rt, ok := rr.Match(r.Method, r.URL.Path); ok {
				r = routing.WithRoute(r, rt)
			}
			next.ServeHTTP(w, r)
		})
	}
}
