package httpapi

import (
	"net"
	"net/http"

	"github.com/lexiqai/lipread-gateway/internal/observability"
)

const (
	correlationHeader = "X-Correlation-ID"
	sessionHeader     = "X-Session-ID"
	sessionCookie     = "lipread_session"
)

// withCorrelationID attaches a request-scoped logger carrying the inbound
// correlation ID, or a fresh one, and echoes it back.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationHeader)
		if id == "" {
			id = observability.NewCorrelationID()
		}
		w.Header().Set(correlationHeader, id)
		ctx := observability.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// sessionKey resolves the caller's session: header, then cookie, then the
// caller's network address.
func sessionKey(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return addressKey(r)
}

// addressKey is the caller's host, used when it presents no token
func addressKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// presentedToken returns the token the client sent, or "" when it relies on its address
func presentedToken(r *http.Request) string {
	if id := r.Header.Get(sessionHeader); id != "" {
		return id
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}
