// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes. It decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
// main.go creates:
//
//	config.Load() → OpenStore(cfg) → server.New(cfg, store)
//
// server.New creates:
//
//	store → UserService/GroupService/EventService → handlers → routes
//
// This is the "composition root" pattern: all dependencies are wired in one
// place, rather than scattered across the codebase.
package server

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/meetup/internal/auth"
	"github.com/sakif/meetup/internal/config"
	"github.com/sakif/meetup/internal/handler"
	"github.com/sakif/meetup/internal/middleware"
	"github.com/sakif/meetup/internal/repository"
	"github.com/sakif/meetup/internal/service"
)

// metricsNamespace prefixes every Prometheus metric we export.
const metricsNamespace = "meetup"

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the store. When the server shuts down, Start closes it to
// flush pending writes and release connections.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	store  repository.Store
}

// New wires services, handlers and routes on top of an open store.
func New(cfg *config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the router, for tests and for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz                        → liveness + database ping
//	GET  /metrics                        → Prometheus scrape endpoint
//	GET  /oauth2/authorization/auth0     → start OAuth login     (when configured)
//	GET  /login/oauth2/code/auth0        → OAuth callback        (when configured)
//	GET  /api/user                       → caller or empty body  (public)
//	GET  /api/auth/user                  → bearer claims         (bearer)
//	...  /api/groups, /api/events, ...   → resources             (authenticated)
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added. Our order:
//  1. RequestID: assigns an id to each request (for tracing)
//  2. RealIP: extracts real client IP from proxy headers
//  3. Recoverer: catches panics and returns 500 instead of crashing
//  4. Logger + Metrics: observe every request, including 404s
//  5. CORS: answers preflights before auth ever runs
//
// On /api, Authenticate resolves the caller, then CSRF checks session
// writes, then RequireIdentity guards everything but the public routes.
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	var provider *auth.OIDCProvider
	if s.config.OAuthEnabled() {
		provider = auth.NewOIDCProvider(
			s.config.OAuthDomain,
			s.config.OAuthClientID,
			s.config.OAuthClientSecret,
			s.config.OAuthCallbackURL,
		)
	} else {
		s.logger.Warn("OAUTH_DOMAIN not set, browser login is disabled; only bearer tokens are accepted")
	}

	// === SERVICES AND HANDLERS ===
	// The store implements all three repository interfaces.
	userService := service.NewUserService(s.store, s.logger)
	groupService := service.NewGroupService(s.store, s.store, userService, s.config.Location, s.logger)
	eventService := service.NewEventService(s.store, s.store, userService, s.config.Location, s.logger)
	authService := service.NewAuthService(userService, tokens, s.logger)

	groupHandler := handler.NewGroupHandler(groupService, s.logger)
	eventHandler := handler.NewEventHandler(eventService, s.logger)
	authHandler := handler.NewAuthHandler(provider, authService, s.config.FrontendURL, s.logger)

	metrics := middleware.NewMetrics(metricsNamespace)

	// === Global Middleware ===
	s.router.Use(middleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(metrics.Middleware)

	// CORS with credentials: the SPA sends the SESSION cookie, so origins
	// must be listed explicitly ("*" is not allowed with credentials).
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", middleware.CSRFHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{"Location", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// === Operational Routes ===
	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	// === OAuth Login ===
	if provider != nil {
		s.router.Get("/oauth2/authorization/auth0", authHandler.HandleLogin)
		s.router.Get("/login/oauth2/code/auth0", authHandler.HandleCallback)
	}

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		r.Use(auth.Authenticate(tokens))
		r.Use(middleware.NewCSRF(s.csrfOptions()))

		// Public: these answer anonymous callers themselves.
		r.Get("/user", authHandler.HandleUser)
		r.Get("/auth/user", authHandler.HandleBearerUser)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireIdentity)

			r.Post("/auth/token", authHandler.HandleToken)
			r.Post("/logout", authHandler.HandleLogout)

			r.Get("/groups", groupHandler.HandleListMine)
			r.Post("/groups", groupHandler.HandleCreate)
			r.Get("/groups/available", groupHandler.HandleListAvailable)
			r.Get("/groups/available/paginated", groupHandler.HandlePageAvailable)
			r.Get("/groups/summary", groupHandler.HandleSummary)
			r.Get("/groups/{id}", groupHandler.HandleGet)
			r.Put("/groups/{id}", groupHandler.HandleUpdate)
			r.Delete("/groups/{id}", groupHandler.HandleDelete)
			r.Get("/groups/{id}/events/paginated", groupHandler.HandlePageEvents)
			r.Post("/groups/members/{id}", groupHandler.HandleJoin)
			r.Delete("/groups/members/{id}", groupHandler.HandleLeave)

			r.Get("/events", eventHandler.HandleListMine)
			r.Post("/events", eventHandler.HandleCreate)
			r.Get("/events/available", eventHandler.HandlePageAvailable)
			r.Get("/events/calendar-dates", eventHandler.HandleCalendarDates)
			r.Get("/events/search", eventHandler.HandleSearch)
			r.Get("/events/{id}", eventHandler.HandleGet)
			r.Put("/events/{id}", eventHandler.HandleUpdate)
			r.Delete("/events/{id}", eventHandler.HandleDelete)
			r.Post("/events/{id}/attendees", eventHandler.HandleAttend)
			r.Delete("/events/{id}/attendees", eventHandler.HandleUnattend)
		})
	})

	return nil
}

// handleHealth reports whether the server can reach its database.
// csrfOptions derives the CSRF signing key from the JWT secret. Cookies are
// Secure unless the frontend runs on localhost.
func (s *Server) csrfOptions() middleware.CSRFOptions {
	key := sha256.Sum256([]byte("csrf|" + s.config.JWTSecret))

	var origins []string
	for _, o := range s.config.CORSOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			origins = append(origins, u.Host)
		}
	}

	secure := true
	if u, err := url.Parse(s.config.FrontendURL); err == nil {
		h := u.Hostname()
		secure = h != "localhost" && h != "127.0.0.1" && h != "::1"
	}

	return middleware.CSRFOptions{Key: key[:], Secure: secure, TrustedOrigins: origins}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the store (flushes the SQLite WAL / returns pooled connections)
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBDriver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
