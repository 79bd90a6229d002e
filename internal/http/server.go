package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Clark-Hu/moviestore/internal/auth"
	"github.com/Clark-Hu/moviestore/internal/checkout"
	"github.com/Clark-Hu/moviestore/internal/config"
	"github.com/Clark-Hu/moviestore/internal/logger"
	"github.com/Clark-Hu/moviestore/internal/metrics"
	"github.com/Clark-Hu/moviestore/internal/popularity"
	"github.com/Clark-Hu/moviestore/internal/ratings"
	"github.com/Clark-Hu/moviestore/internal/repository"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Pinger is an optional side store probed by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into. Cache, Limiter,
// HTTPMetrics and Gatherer are optional.
type Deps struct {
	Health      HealthChecker
	Cache       Pinger
	Repo        *repository.Repository
	Ratings     *ratings.Service
	Popularity  *popularity.Service
	Checkout    *checkout.Service
	Carts       checkout.CartStore
	Limiter     RateLimiter
	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
	Logger      *logger.Logger
}

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg         config.Config
	authCfg     auth.Config
	health      HealthChecker
	cache       Pinger
	repo        *repository.Repository
	ratings     *ratings.Service
	popularity  *popularity.Service
	checkout    *checkout.Service
	carts       checkout.CartStore
	limiter     RateLimiter
	httpMetrics *metrics.HTTPMetrics
	gatherer    prometheus.Gatherer
	logger      *logger.Logger
	router      chi.Router
	httpSrv     *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, deps Deps) *Server {
	logg := deps.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	s := &Server{
		cfg:         cfg,
		authCfg:     auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer},
		health:      deps.Health,
		cache:       deps.Cache,
		repo:        deps.Repo,
		ratings:     deps.Ratings,
		popularity:  deps.Popularity,
		checkout:    deps.Checkout,
		carts:       deps.Carts,
		limiter:     deps.Limiter,
		httpMetrics: deps.HTTPMetrics,
		gatherer:    deps.Gatherer,
		logger:      logg,
		router:      chi.NewRouter(),
	}
	s.router.Use(s.requestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logging)
	s.router.Use(s.recoverer)
	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(s.cors())
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	if s.gatherer != nil {
		s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/movies", func(r chi.Router) {
			r.Get("/", s.handleListMovies)
			r.Get("/trending", s.handleTrending)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetMovie)
				r.Get("/rating", s.handleGetRatingSummary)
				r.Group(func(r chi.Router) {
					r.Use(s.requireUser)
					r.With(s.rateLimitWrites).Post("/reviews", s.handleCreateReview)
					r.With(s.rateLimitWrites).Post("/ratings", s.handleSubmitRating)
					r.Get("/ratings/me", s.handleGetMyRating)
					r.Delete("/ratings/me", s.handleDeleteMyRating)
				})
			})
		})
		r.Get("/popularity-map", s.handlePopularityMap)

		r.Group(func(r chi.Router) {
			r.Use(s.requireUser)
			r.Route("/reviews/{id}", func(r chi.Router) {
				r.With(s.rateLimitWrites).Put("/", s.handleUpdateReview)
				r.Delete("/", s.handleDeleteReview)
			})
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", s.handleGetCart)
				r.Delete("/", s.handleClearCart)
				r.Post("/items", s.handleSetCartItem)
				r.Delete("/items/{movieId}", s.handleRemoveCartItem)
				r.Post("/checkout", s.handleCheckout)
			})
			r.Route("/me", func(r chi.Router) {
				r.Get("/orders", s.handleListOrders)
				r.Get("/profile", s.handleGetProfile)
				r.Put("/profile", s.handleUpdateProfile)
			})
		})
	})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof(ctx, "http: listening on %s", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.health != nil {
		if err := s.health.HealthCheck(ctx); err != nil {
			s.respondUnhealthy(ctx, w, "database", err)
			return
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx); err != nil {
			s.respondUnhealthy(ctx, w, "redis", err)
			return
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondUnhealthy(ctx context.Context, w http.ResponseWriter, dependency string, err error) {
	s.logger.Error(s.logger.WithField(ctx, "dependency", dependency), "healthz: dependency unreachable", err)
	s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "dependency": dependency})
}
