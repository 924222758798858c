// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: the database, services, handlers, and
// middleware are all wired together here, so main.go stays minimal and each
// layer only receives the interfaces it needs.
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

	"github.com/tbhasan/tableforge/internal/auth"
	"github.com/tbhasan/tableforge/internal/handler"
	"github.com/tbhasan/tableforge/internal/middleware"
	sqliteRepo "github.com/tbhasan/tableforge/internal/repository/sqlite"
	"github.com/tbhasan/tableforge/internal/service"
)

// Config holds server configuration, loaded from the environment in main.
type Config struct {
	Port      int
	DBPath    string // path to the SQLite database file
	JWTSecret string // HMAC secret for session tokens

	// GitHub OAuth is optional; the routes are only registered when all
	// three values are set.
	GitHubClientID     string
	GitHubClientSecret string
	GitHubCallbackURL  string
}

// Server owns the router and the database connection; the connection is
// closed during graceful shutdown.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New creates a Server: opens the database, assembles the dependency chain
// (repository → service → handlers), and registers the routes.
func New(cfg Config, logger *slog.Logger) (*Server, error) {
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
	}

	if err := s.setupRoutes(); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
//	POST   /api/register        → provision an account
//	POST   /api/login           → authenticate, set session cookie
//	POST   /auth/logout         → clear session cookie
//	GET    /api/me              → profile of the authenticated account
//	PUT    /api/me/password     → change password
//	GET    /api/me/options      → preference overrides (sparse)
//	PATCH  /api/me/options      → set/clear preference overrides
//	DELETE /api/me              → delete account (+options, cascade)
//	GET    /auth/github/login    ┐ GitHub OAuth provisioning path
//	GET    /auth/github/callback ┘ (only when configured)
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	accountService := service.NewAccountService(s.db, tokens, s.logger)
	accountHandler := handler.NewAccountHandler(accountService, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/register", accountHandler.HandleRegister)
		r.Post("/login", accountHandler.HandleLogin)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens))
			r.Get("/me", accountHandler.HandleMe)
			r.Delete("/me", accountHandler.HandleDeleteMe)
			r.Put("/me/password", accountHandler.HandleChangePassword)
			r.Get("/me/options", accountHandler.HandleGetOptions)
			r.Patch("/me/options", accountHandler.HandlePatchOptions)
		})
	})

	s.router.Post("/auth/logout", accountHandler.HandleLogout)

	if s.config.GitHubClientID != "" && s.config.GitHubClientSecret != "" && s.config.GitHubCallbackURL != "" {
		github := auth.NewGitHubProvider(
			s.config.GitHubClientID,
			s.config.GitHubClientSecret,
			s.config.GitHubCallbackURL,
		)
		oauthHandler := handler.NewOAuthHandler(github, accountService, s.logger)
		s.router.Get("/auth/github/login", oauthHandler.HandleGitHubLogin)
		s.router.Get("/auth/github/callback", oauthHandler.HandleGitHubCallback)
	} else {
		s.logger.Warn("GitHub OAuth not configured, /auth/github routes disabled")
	}

	return nil
}

// Start runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully: stop accepting connections, drain in-flight requests (30s
// budget), close the database.
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
