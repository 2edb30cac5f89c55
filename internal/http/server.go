package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Clark-Hu/watchvault/internal/config"
	"github.com/Clark-Hu/watchvault/internal/store"
	"github.com/Clark-Hu/watchvault/internal/tmdb"
	"github.com/Clark-Hu/watchvault/internal/vault"
)

const defaultKeepAlive = 25 * time.Second

// Server wires HTTP routing, middleware, and handlers.
type Server struct {
	cfg           config.Config
	store         *store.Store
	catalog       tmdb.Catalog
	vault         *vault.Service
	searchLimiter *IPRateLimiter
	keepAlive     time.Duration
	logger        *log.Logger
	router        chi.Router
	httpSrv       *http.Server
}

// New constructs the HTTP server with base middleware and routes.
func New(cfg config.Config, st *store.Store, catalog tmdb.Catalog, vaultSvc *vault.Service, logger *log.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if logger == nil {
		logger = log.Default()
	}

	s := &Server{
		cfg:           cfg,
		store:         st,
		catalog:       catalog,
		vault:         vaultSvc,
		searchLimiter: NewIPRateLimiter(cfg.SearchRatePerMin, cfg.SearchRateBurst),
		keepAlive:     defaultKeepAlive,
		logger:        logger,
		router:        r,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/catalog", func(r chi.Router) {
		r.Get("/trending/movies", s.handleTrendingMovies)
		r.Get("/trending/series", s.handleTrendingSeries)
		r.Get("/popular/{kind}", s.handlePopular)
		r.Get("/top-rated/{kind}", s.handleTopRated)
		r.Get("/providers", s.handleProviders)
		r.Get("/providers/{providerID}/titles", s.handleProviderTitles)
		r.With(s.rateLimitSearch).Get("/search", s.handleSearch)
		r.Get("/{kind}/{id}", s.handleDetails)
	})
	s.router.Route("/vault", func(r chi.Router) {
		r.Use(s.requireUser)
		r.Get("/", s.handleVaultLists)
		r.Get("/entries", s.handleVaultEntries)
		r.Get("/stats", s.handleVaultStats)
		r.Get("/events", s.handleVaultEvents)
		r.Get("/{kind}/{id}", s.handleVaultStatus)
		r.Put("/{kind}/{id}", s.handleVaultPut)
		r.Delete("/{kind}/{id}", s.handleVaultDelete)
	})
}

// Handler exposes the router, mainly for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start boots the HTTP server and blocks until ctx ends or serving fails. Once
// ctx ends it shuts the server down and returns after in-flight requests have
// drained.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         ":" + s.cfg.Port,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSecs) * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
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
		if err := s.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		s.searchLimiter.Stop()
		return err
	}
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.searchLimiter.Stop()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type healthResponse struct {
	Status          string `json:"status"`
	TotalConns      int32  `json:"totalConns"`
	AcquiredConns   int32  `json:"acquiredConns"`
	IdleConns       int32  `json:"idleConns"`
	MaxConns        int32  `json:"maxConns"`
	CatalogRegion   string `json:"catalogRegion"`
	CatalogKeyIsSet bool   `json:"catalogKeyIsSet"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.HealthCheck(ctx); err != nil {
		s.logger.Printf("health check failed: %v", err)
		s.respondError(w, http.StatusServiceUnavailable, "UNHEALTHY", "Database unreachable")
		return
	}

	resp := healthResponse{
		Status:          "ok",
		CatalogRegion:   s.cfg.TMDBRegion,
		CatalogKeyIsSet: s.cfg.TMDBAPIKey != "",
	}
	if stats := s.store.Stats(); stats != nil {
		resp.TotalConns = stats.TotalConns()
		resp.AcquiredConns = stats.AcquiredConns()
		resp.IdleConns = stats.IdleConns()
		resp.MaxConns = stats.MaxConns()
	}
	s.respondJSON(w, http.StatusOK, resp)
}
