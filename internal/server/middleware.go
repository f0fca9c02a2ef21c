package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/auth"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/ratelimit"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/requestctx"
)

// CorrelationMiddleware stores a short correlation id in the request
// context. It reuses chi's request id when present so server logs and
// audit rows line up with access logs.
func CorrelationMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := middleware.GetReqID(r.Context())
			if id == "" {
				id = uuid.NewString()
			}
			r = r.WithContext(requestctx.SetCorrelationID(r.Context(), id))
			next.ServeHTTP(w, r)
		})
	}
}

// AuthMiddleware verifies the Authorization bearer token and stores the
// user id in the request context. Missing or invalid tokens get 401.
func AuthMiddleware(verifier auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if token == "" {
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
				return
			}
			userID, err := verifier.Verify(r.Context(), token)
			if err != nil {
				if err != auth.ErrInvalidToken {
					log.Error().Err(err).
						Str("correlation_id", requestctx.CorrelationID(r.Context())).
						Msg("token verification failed")
					writeError(w, http.StatusInternalServerError, "INTERNAL", "Token verification failed")
					return
				}
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token")
				return
			}
			r = r.WithContext(requestctx.SetUserID(r.Context(), userID))
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware rejects requests over the per-owner rate with 429.
func RateLimitMiddleware(l *ratelimit.Limiter) func(http.Handler) http.Handler {
	if l == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ownerID := requestctx.UserID(r.Context())
			if ownerID != "" && !l.Allow(ownerID) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSMiddleware sets CORS headers. allowedOrigins can be ["*"] for any.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	allowAll := false
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
			break
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else if origin != "" {
				for _, o := range allowedOrigins {
					if o == origin {
						w.Header().Set("Access-Control-Allow-Origin", origin)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")
			w.Header().Set("Access-Control-Max-Age", "300")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
