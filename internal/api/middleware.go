package api

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"finance-a2a-backend/internal/auth"
	"finance-a2a-backend/internal/metrics"
	"finance-a2a-backend/pkg/httputil"
	"finance-a2a-backend/pkg/logger"
)

const (
	AgentKeyHeader = "X-Agent-Key"
	AdminKeyHeader = "X-Admin-Key"
)

// --- JWT Middleware ---

// JwtAuthMiddleware verifies the JWT token from the Authorization header.
// If valid, it injects the user id and email into the request context.
func JwtAuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	log := logger.Get().With("component", "auth_middleware")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				httputil.RespondError(w, http.StatusUnauthorized, "Malformed Authorization header (Expected: Bearer <token>)")
				return
			}

			claims := &auth.CustomClaims{}
			token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				log.Debugw("Rejected token", "error", err)
				switch {
				case errors.Is(err, jwt.ErrTokenExpired):
					httputil.RespondError(w, http.StatusUnauthorized, "Token has expired")
				case errors.Is(err, jwt.ErrTokenMalformed):
					httputil.RespondError(w, http.StatusUnauthorized, "Malformed token")
				default:
					httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
				}
				return
			}
			if !token.Valid || claims.UserID == "" {
				httputil.RespondError(w, http.StatusUnauthorized, "Invalid token claims (missing user id)")
				return
			}

			ctx := auth.WithUser(r.Context(), claims.UserID, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// --- Shared key middleware ---

// RequireKey admits requests whose header carries a key matching the bcrypt
// hash. An empty hash disables the route group entirely.
func RequireKey(header, hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hash == "" {
				httputil.RespondError(w, http.StatusServiceUnavailable, "Endpoint is not configured")
				return
			}
			if !auth.CheckKeyHash(r.Header.Get(header), hash) {
				httputil.RespondError(w, http.StatusUnauthorized, "Invalid or missing "+header)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// --- Rate limiting ---

// RateLimiter hands out one token bucket per caller. Idle buckets expire
// from the cache.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	buckets *cache.Cache
	mu      sync.Mutex
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: cache.New(10*time.Minute, 20*time.Minute),
	}
}

func (l *RateLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.buckets.SetDefault(key, lim)
	return lim
}

// Allow reports whether the caller identified by key may proceed.
func (l *RateLimiter) Allow(key string) bool {
	return l.bucket(key).Allow()
}

// Middleware keys on the authenticated user, falling back to the client IP.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			key = host
		}
		if userID, ok := auth.GetUserIDFromContext(r.Context()); ok {
			key = "user:" + userID
		}
		if !l.Allow(key) {
			metrics.RateLimited.Inc()
			w.Header().Set("Retry-After", "1")
			httputil.RespondError(w, http.StatusTooManyRequests, "Too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- Request logging ---

// RequestLogger logs one structured line per request.
func RequestLogger(next http.Handler) http.Handler {
	log := logger.Get().With("component", "http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		fields := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			log.Warnw("Request completed", fields...)
			return
		}
		log.Infow("Request completed", fields...)
	})
}
