// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It connects handlers, middleware, and
// routes, and it is the composition root: every dependency in the app is
// constructed here, in one place, rather than scattered across packages.
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it testable (a test can
// build a Server without running main) and keeps main.go down to "load the
// config, start the server".
//
// DEPENDENCY INJECTION FLOW:
//
//	config.Config → New() builds:
//	  sqlite.DB → AuthService ← auth.Codec
//	                    ↑     ← auth.GitHubProvider
//	              AuthHandler
//
// Each layer only receives what it needs: the service gets repository
// interfaces, the handler gets the service, and nothing below the handler
// knows HTTP exists.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nafisb/gitdoor/internal/auth"
	"github.com/nafisb/gitdoor/internal/config"
	"github.com/nafisb/gitdoor/internal/handler"
	"github.com/nafisb/gitdoor/internal/middleware"
	sqliteRepo "github.com/nafisb/gitdoor/internal/repository/sqlite"
	"github.com/nafisb/gitdoor/internal/service"
)

// Server owns the router, the configuration, and the database connection.
// The DB is closed during graceful shutdown to flush the WAL and release
// the file lock.
type Server struct {
	router *chi.Mux
	config *config.Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server with the full dependency graph wired up.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to avoid confusion with the
// sqlite driver package.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	codec, err := auth.NewCodec(cfg.JWTSecret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("building token codec: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	s.setupRoutes(codec)
	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET  /api/auth/github          → redirect to GitHub authorization
//	GET  /api/auth/github/callback → complete the OAuth flow, set cookies
//	POST /api/auth/refresh         → new access cookie from refresh cookie
//	POST /api/auth/logout          → revoke session, clear cookies
//	GET  /api/auth/me              → current user profile (gate-protected)
//	GET  /*                        → SPA shell (static files + index fallback)
//
// MIDDLEWARE ORDER MATTERS: RequestID first so the logger can include it,
// Recoverer before the routes so a handler panic becomes a 500 and a log
// line instead of a dead process.
func (s *Server) setupRoutes(codec *auth.Codec) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	github := auth.NewGitHubProvider(
		s.config.GitHubClientID,
		s.config.GitHubClientSecret,
		s.config.CallbackURL(),
	)

	authService := service.NewAuthService(s.db.Users(), s.db.Sessions(), codec, s.logger)
	authHandler := handler.NewAuthHandler(github, authService, s.logger, s.config.SecureCookies())

	s.router.Route("/api/auth", func(r chi.Router) {
		r.Get("/github", authHandler.HandleGitHubLogin)
		r.Get("/github/callback", authHandler.HandleGitHubCallback)
		r.Post("/refresh", authHandler.HandleRefresh)
		r.Post("/logout", authHandler.HandleLogout)
		r.With(auth.RequireUser(codec, s.db.Users())).Get("/me", authHandler.HandleMe)
	})

	// Everything else is the frontend. The SPA handler serves real files
	// when they exist and index.html otherwise, so "/" and "/?error=..."
	// both land in the app shell.
	s.router.Handle("/*", handler.NewSPAHandler(s.config.StaticDir))
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, give in-flight requests 30
// seconds to drain, close the database.
func (s *Server) Start() error {
	defer s.db.Close()

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
			slog.String("appURL", s.config.AppURL),
			slog.String("database", s.config.DBPath),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if err != http.ErrServerClosed {
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
