// Package server sets up the HTTP server, router, and all route definitions.
//
// This is the composition root: New builds the services on top of the
// database, the handlers on top of the services, and mounts them on a chi
// router. Nothing below this package knows about routes or middleware order.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/htmx-starter/internal/auth"
	"github.com/sakif/htmx-starter/internal/config"
	"github.com/sakif/htmx-starter/internal/handler"
	"github.com/sakif/htmx-starter/internal/middleware"
	"github.com/sakif/htmx-starter/internal/repository/sqlstore"
	"github.com/sakif/htmx-starter/internal/service"
	"github.com/sakif/htmx-starter/web"
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database handle it is given. Start closes it after
// the HTTP server has drained, so in-flight requests never see a closed pool.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	db     *sqlstore.DB
}

// New wires the application on top of an open database.
//
// DEPENDENCY CHAIN:
//
//	sqlstore.DB (repository.Store)
//	  → ItemService, UserService, AuthService
//	  → ItemHandler, UserHandler, AuthHandler, PageHandler
//	  → routes
//
// The Authenticator loads users through AuthService, so the auth middleware
// reads the database inside a transaction like every other operation.
func New(cfg config.Config, db *sqlstore.DB, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		db:     db,
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
//	GET    /                       home page                 (optional user)
//	GET    /healthz                database health (JSON)
//	GET    /static/*               CSS and JS
//	GET    /auth/login             login page                (optional user)
//	GET    /auth/register          registration page         (optional user)
//	POST   /auth/register          create account (form/JSON)
//	POST   /auth/cookie/login      set auth cookie
//	POST   /auth/cookie/logout     clear auth cookie
//	GET    /auth/logout            clear cookie, redirect home
//	GET    /auth/github/login      GitHub OAuth (when configured)
//	GET    /auth/github/callback
//	GET    /items                  table fragment or full page  ┐
//	POST   /items                                               │
//	GET    /items/{id}/edit                                     │
//	GET    /items/{id}/cancel                                   │
//	PUT    /items/{id}                                          │ require user
//	DELETE /items/{id}                                          │
//	GET    /profile, POST /profile                              │
//	GET    /users/me, PATCH /users/me                           │
//	GET    /users, GET|PATCH|DELETE /users/{id}  (superuser)   ┘
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger and the recoverer can report it;
// RealIP before the logger; Recoverer inside the logger so a panic is
// logged as the 500 it turns into.
func (s *Server) setupRoutes() error {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(chimiddleware.Compress(5, "text/html", "text/css", "application/javascript", "application/json"))

	templates, static := s.assets()

	views, err := handler.NewRenderer(templates)
	if err != nil {
		return fmt.Errorf("parsing templates: %w", err)
	}

	// === Services ===
	tokens, err := auth.NewTokenService(s.config.SecretKey, s.config.TokenLifetime)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	passwords := auth.NewPasswordService()

	authService := service.NewAuthService(s.db, tokens, passwords, s.logger)
	userService := service.NewUserService(s.db, passwords, s.logger)
	itemService := service.NewItemService(s.db, s.logger)

	cookie := auth.CookieOptions{
		Name:   s.config.CookieName,
		Secure: s.config.CookieSecure,
		MaxAge: tokens.Lifetime(),
	}
	authn := auth.NewAuthenticator(tokens, authService, cookie, s.logger)

	var github *auth.GitHubProvider
	if s.config.GitHubEnabled() {
		github = auth.NewGitHubProvider(s.config.GitHubClientID, s.config.GitHubClientSecret, s.githubCallbackURL())
	}

	// === Handlers ===
	pages := handler.NewPageHandler(views, s.db, s.logger)
	authHandler := handler.NewAuthHandler(authService, github, cookie, views, s.logger)
	itemHandler := handler.NewItemHandler(itemService, views, s.logger)
	userHandler := handler.NewUserHandler(userService, views, s.logger)

	// === Public routes ===
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	s.router.Get("/healthz", pages.HandleHealth)

	s.router.With(authn.OptionalUser).Get("/", pages.HandleHome)

	s.router.Route("/auth", func(r chi.Router) {
		r.With(authn.OptionalUser).Get("/login", authHandler.HandleLoginPage)
		r.With(authn.OptionalUser).Get("/register", authHandler.HandleRegisterPage)

		r.Post("/register", authHandler.HandleRegister)
		r.Post("/cookie/login", authHandler.HandleLogin)
		r.Post("/cookie/logout", authHandler.HandleLogout)
		r.Get("/logout", authHandler.HandleLogoutRedirect)

		// Routes only exist when GitHub login is configured.
		if github != nil {
			r.Get("/github/login", authHandler.HandleGitHubLogin)
			r.Get("/github/callback", authHandler.HandleGitHubCallback)
		}
	})

	// === Protected routes ===
	s.router.Group(func(r chi.Router) {
		r.Use(authn.RequireUser)

		r.Route("/items", func(r chi.Router) {
			r.Get("/", itemHandler.HandleList)
			r.Post("/", itemHandler.HandleCreate)
			r.Get("/{id}/edit", itemHandler.HandleEdit)
			r.Get("/{id}/cancel", itemHandler.HandleCancel)
			r.Put("/{id}", itemHandler.HandleUpdate)
			r.Delete("/{id}", itemHandler.HandleDelete)
		})

		r.Get("/profile", userHandler.HandleProfilePage)
		r.Post("/profile", userHandler.HandleProfileUpdate)

		r.Route("/users", func(r chi.Router) {
			r.Get("/", userHandler.HandleList)
			r.Get("/me", userHandler.HandleMe)
			r.Patch("/me", userHandler.HandleUpdateMe)
			r.Get("/{id}", userHandler.HandleGet)
			r.Patch("/{id}", userHandler.HandleUpdate)
			r.Delete("/{id}", userHandler.HandleDelete)
		})
	})

	return nil
}

// assets returns the template and static file systems: the embedded ones,
// or directories on disk when configured (handy while editing templates).
func (s *Server) assets() (templates, static fs.FS) {
	templates, static = web.Templates(), web.Static()
	if s.config.TemplateDir != "" {
		templates = os.DirFS(s.config.TemplateDir)
	}
	if s.config.StaticDir != "" {
		static = os.DirFS(s.config.StaticDir)
	}
	return templates, static
}

func (s *Server) githubCallbackURL() string {
	if s.config.GitHubCallbackURL != "" {
		return s.config.GitHubCallbackURL
	}
	addr := s.config.Addr
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/auth/github/callback"
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Wait up to ShutdownTimeout for in-flight requests
//  3. Close the database
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is cancelled. Start is Run with the OS signals.
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.String("addr", s.config.Addr),
			slog.String("database", string(s.db.Dialect())),
			slog.Bool("github_login", s.config.GitHubEnabled()),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		s.logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
