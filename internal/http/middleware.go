package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/Clark-Hu/moviestore/internal/auth"
	apperrors "github.com/Clark-Hu/moviestore/internal/errors"
)

const requestIDHeader = "X-Request-Id"

type contextKey string

const ctxUserID contextKey = "user_id"

// UserIDFromContext returns the authenticated user id, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

func withUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// RateLimiter counts writes per scope within a fixed window.
type RateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, reqID)
		ctx := s.logger.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logging writes one entry per finished request and feeds the HTTP metrics,
// labelled with the matched route pattern rather than the raw path.
func (s *Server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := s.logger.WithFields(r.Context(), map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		})
		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()

		next.ServeHTTP(rec, r.WithContext(ctx))

		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			} else {
				route = "unmatched"
			}
		}
		s.httpMetrics.Observe(r.Method, route, rec.status, elapsed)

		s.logger.Info(s.logger.WithFields(ctx, map[string]any{
			"route":       route,
			"status":      rec.status,
			"duration_ms": elapsed.Milliseconds(),
		}), "request.complete")
	})
}

func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				s.respondError(w, r, apperrors.Wrap(apperrors.CodeInternal, err, "panic"))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) cors() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Retry-After"},
		MaxAge:         300,
	}).Handler
}

// authenticate resolves the caller from a bearer token when one is sent.
// Requests without an Authorization header pass through anonymously; a header
// that does not carry a valid token is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := auth.BearerToken(header)
		if !ok {
			s.respondError(w, r, apperrors.New(apperrors.CodeUnauthorized, "missing or invalid authentication information"))
			return
		}
		claims, err := auth.ParseAccessToken(s.authCfg, token)
		if err != nil {
			s.respondError(w, r, apperrors.Wrap(apperrors.CodeUnauthorized, err, "invalid token"))
			return
		}
		ctx := withUserID(r.Context(), claims.UserID())
		ctx = s.logger.WithUserID(ctx, claims.UserID())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			s.respondError(w, r, apperrors.New(apperrors.CodeUnauthorized, "missing or invalid authentication information"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// rateLimitWrites caps review and rating writes per user. It is a no-op
// without a limiter or with a zero limit.
func (s *Server) rateLimitWrites(next http.Handler) http.Handler {
	if s.limiter == nil || s.cfg.RateLimitWrites <= 0 || s.cfg.RateLimitWindow <= 0 {
		return next
	}
	window := s.cfg.RateLimitWindow
	limit := s.cfg.RateLimitWrites
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := UserIDFromContext(r.Context())
		allowed, count, err := s.limiter.FixedWindowAllow(r.Context(), "writes:"+userID, limit, window)
		if err != nil {
			s.respondError(w, r, apperrors.Wrap(apperrors.CodeDependency, err, "rate limiting"))
			return
		}
		if !allowed {
			ctx := s.logger.WithFields(r.Context(), map[string]any{
				"attempts":       count,
				"limit":          limit,
				"window_seconds": int(window.Seconds()),
			})
			s.logger.Warn(ctx, "rate_limit.blocked")
			w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
			s.respondError(w, r, apperrors.New(apperrors.CodeRateLimit, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
