// Package shield provides the HTTP hardening middleware of the tagqa API:
// security headers, request body limits and per-client rate limiting.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.APIStack() {
//	    r.Use(mw)
//	}
//	r.With(shield.NewRateLimiter(6, time.Minute).Middleware).Post("/api/monitor-runs", h)
package shield

import "net/http"

// APIStack returns the middleware applied to every route of a JSON API:
// SecurityHeaders → MaxBody.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		MaxBody(1 << 20),
	}
}
