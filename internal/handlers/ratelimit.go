package handlers

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/reelnotes/backend/internal/apperr"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(key string) bool
}

const (
	errRateLimited  = "too many requests, slow down"
	kindRateLimited = apperr.Kind("resource-exhausted")
)

// rateLimited guards next behind limiter, keyed by scope and client IP.
func rateLimited(limiter RateLimiter, scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !allowRequest(limiter, r, scope) {
			w.Header().Set("Retry-After", "60")
			respondJSON(r.Context(), w, http.StatusTooManyRequests, errorBody{Error: errorDetail{
				Status:  kindRateLimited,
				Message: errRateLimited,
			}})
			return
		}
		next(w, r)
	}
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(rateLimitKey(r, scope))
}

func rateLimitKey(r *http.Request, scope string) string {
	ip := clientIP(r)
	if scope == "" {
		return ip
	}
	return fmt.Sprintf("%s:%s", scope, ip)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
