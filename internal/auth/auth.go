// Package auth implements the shared-secret cookie session: a single boolean
// "authenticated" flag derived from the auth cookie on every request.
package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// CookieName is the session cookie.
	CookieName = "auth"
	// CookieValue is the only value that marks a request as authenticated.
	CookieValue = "yes"
	// DefaultMaxAge is the session cookie lifetime.
	DefaultMaxAge = 7 * 24 * time.Hour
)

type authenticatedKey struct{}

// IsAuthenticated reports whether r carries auth=yes. Missing or any other value is false.
func IsAuthenticated(r *http.Request) bool {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return false
	}
	return c.Value == CookieValue
}

// WithAuthenticated returns a copy of ctx carrying the request's flag.
func WithAuthenticated(ctx context.Context, authenticated bool) context.Context {
	return context.WithValue(ctx, authenticatedKey{}, authenticated)
}

// FromContext returns the flag set by the gate; false when the gate did not run.
func FromContext(ctx context.Context) bool {
	v, _ := ctx.Value(authenticatedKey{}).(bool)
	return v
}

// IsProtected reports whether path falls under prefix.
func IsProtected(path, prefix string) bool {
	return strings.HasPrefix(path, prefix)
}

// LoginURL builds the login redirect target preserving path as the next hint.
// Spaces are encoded as %20 rather than +, so the hint reads the same as a
// browser-built URL.
func LoginURL(path string) string {
	return "/login?next=" + strings.ReplaceAll(url.QueryEscape(path), "+", "%20")
}

// SessionCookie returns the cookie set after a successful login.
// secure is false only in local development.
func SessionCookie(secure bool, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    CookieValue,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ExpiredCookie returns a cookie that clears the session in the browser.
func ExpiredCookie(secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// SafeNext returns next, re-encoded, when it is a site-local absolute path, else
// fallback. Rejects scheme-relative ("//host") and backslash forms browsers
// treat as external.
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") || strings.ContainsAny(next, "\r\n") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return u.String()
}
