// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer — it connects handlers, middleware, and routes.
// Think of it as the control centre that decides:
// - Which URL patterns map to which handler functions
// - What middleware runs on which routes
// - How the server starts and stops gracefully
//
// WHY SEPARATE FROM main.go?
// Keeping server setup in its own package makes it:
// - Testable (we can create a test server without running main)
// - Reusable (multiple entry points could use the same server config)
// - Clean (main.go stays minimal — just "start the server")
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go builds Config → New() creates:
//	  sqlite.DB → services (user/message/notification) → handlers → routes
//
// This is the "composition root" pattern — all dependencies are wired in one
// place rather than scattered across the codebase.
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

	"github.com/sakif/chirper/internal/auth"
	"github.com/sakif/chirper/internal/handler"
	"github.com/sakif/chirper/internal/middleware"
	sqliteRepo "github.com/sakif/chirper/internal/repository/sqlite"
	"github.com/sakif/chirper/internal/service"
)

// Config holds server configuration. A struct (instead of individual
// parameters) keeps signatures stable when options are added and lets main.go
// load everything from the environment in one place.
type Config struct {
	Port      int
	DBPath    string // path to the SQLite database file
	JWTSecret string // HMAC secret for signing access tokens
}

// Server owns the router and the database connection. The connection is
// closed during graceful shutdown to flush the WAL and release the file lock.
type Server struct {
	router *chi.Mux
	config Config
	logger *slog.Logger
	db     *sqliteRepo.DB
}

// New assembles the entire dependency chain:
//
//  1. Open the database (sqlite.New)
//  2. Build the services over the repository interfaces
//  3. Build the handlers over the services
//  4. Wire handlers to routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services, and nothing below the handler layer
// ever sees HTTP.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo to avoid confusion with the
// sqlite driver package.
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
		db.Close() // Clean up DB if route setup fails
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	return s, nil
}

// Handler exposes the assembled router. Tests mount it on an
// httptest.Server instead of going through Start.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the database. Only needed when the server was built but
// Start was never called (again, tests).
func (s *Server) Close() error {
	return s.db.Close()
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	POST   /api/users/auth/register        → create account, returns token
//	POST   /api/users/auth/login           → returns token
//	POST   /api/users/auth/logout          → acknowledge logout        [auth]
//	GET    /api/users/me                   → own record                [auth]
//	GET    /api/users/{username}           → public profile
//	PUT    /api/users/profile              → edit own profile          [auth]
//	POST   /api/users/{username}/follow    → follow                    [auth]
//	DELETE /api/users/{username}/follow    → unfollow                  [auth]
//	GET    /api/tweets/timeline?page=N     → global feed               [auth]
//	GET    /api/tweets/user/{username}     → one user's tweets
//	POST   /api/tweets/post                → create tweet              [auth]
//	GET    /api/tweets/{id}                → single tweet
//	DELETE /api/tweets/{id}                → delete own tweet          [auth]
//	POST   /api/tweets/{id}/like           → like                      [auth]
//	DELETE /api/tweets/{id}/like           → unlike                    [auth]
//	GET    /api/search/users?q=            → user search
//	GET    /api/search/tweets?q=           → tweet search
//	GET    /api/notifications              → own notifications         [auth]
//	POST   /api/notifications/mark-read    → mark all read             [auth]
//	GET    /api/notifications/unread-count → badge count               [auth]
//
// MIDDLEWARE ORDER MATTERS:
// Middleware executes in the order it's added:
// 1. RequestID — assigns unique ID to each request (for tracing)
// 2. RealIP — extracts real client IP from proxy headers
// 3. Recoverer — catches panics and returns 500 instead of crashing
// 4. Logger — logs each request with timing info
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(middleware.Logger(s.logger))

	tokens, err := auth.NewTokenService(s.config.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	// Services share the single *sqlite.DB, which implements all three
	// repository interfaces.
	notificationService := service.NewNotificationService(s.db, s.db, s.logger)
	userService := service.NewUserService(s.db, s.db, notificationService, tokens, passwords, s.logger)
	messageService := service.NewMessageService(s.db, s.db, notificationService, s.logger)

	authHandler := handler.NewAuthHandler(userService, s.logger)
	userHandler := handler.NewUserHandler(userService, s.logger)
	messageHandler := handler.NewMessageHandler(messageService, s.logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, s.logger)

	requireAuth := auth.RequireAuth(tokens)
	optionalAuth := auth.OptionalAuth(tokens)

	s.router.Route("/api", func(r chi.Router) {
		// Public: credentials in, token out.
		r.Post("/users/auth/register", authHandler.HandleRegister)
		r.Post("/users/auth/login", authHandler.HandleLogin)

		// Public reads. OptionalAuth resolves viewer-relative fields
		// (is_liked, is_following) when a token is present.
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/users/{username}", userHandler.HandleProfile)
			r.Get("/tweets/user/{username}", messageHandler.HandleUserTimeline)
			r.Get("/tweets/{id}", messageHandler.HandleGet)
			r.Get("/search/users", userHandler.HandleSearch)
			r.Get("/search/tweets", messageHandler.HandleSearch)
		})

		// Everything else needs a live session.
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/users/auth/logout", authHandler.HandleLogout)
			r.Get("/users/me", authHandler.HandleMe)
			r.Put("/users/profile", userHandler.HandleUpdateProfile)
			r.Post("/users/{username}/follow", userHandler.HandleFollow)
			r.Delete("/users/{username}/follow", userHandler.HandleUnfollow)

			r.Get("/tweets/timeline", messageHandler.HandleTimeline)
			r.Post("/tweets/post", messageHandler.HandleCreate)
			r.Delete("/tweets/{id}", messageHandler.HandleDelete)
			r.Post("/tweets/{id}/like", messageHandler.HandleLike)
			r.Delete("/tweets/{id}/like", messageHandler.HandleUnlike)

			r.Get("/notifications", notificationHandler.HandleList)
			r.Post("/notifications/mark-read", notificationHandler.HandleMarkRead)
			r.Get("/notifications/unread-count", notificationHandler.HandleUnreadCount)
		})
	})

	return nil
}

// Start starts the HTTP server and handles graceful shutdown.
//
// GRACEFUL SHUTDOWN:
// 1. Stop accepting new HTTP connections
// 2. Wait for in-flight requests to finish (30s timeout)
// 3. Close the database connection (flushes WAL, releases file lock)
//
// Skipping step 3 could leave the database file in an inconsistent state.
// The `defer s.db.Close()` ensures it happens even if something panics.
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

		// Give in-flight requests 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
