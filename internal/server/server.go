// Package server is the composition root: it opens the backends named in
// the configuration, builds services and handlers on top of them and maps
// them onto routes.
//
// DEPENDENCY CHAIN:
//
//	config → OpenStore / OpenMedia → services → handlers → chi routes
//
// Each layer only receives what it needs: services get repository
// interfaces, handlers get services, nothing but this package knows which
// concrete backend is in use.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/social-feed/internal/auth"
	"github.com/sakif/social-feed/internal/config"
	"github.com/sakif/social-feed/internal/handler"
	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/middleware"
	"github.com/sakif/social-feed/internal/repository"
	"github.com/sakif/social-feed/internal/service"
)

const shutdownTimeout = 30 * time.Second

// Deps are the backends the server runs on. Main opens them with OpenStore
// and OpenMedia; tests pass in-memory ones.
type Deps struct {
	Store repository.Store
	Media media.Store
	// UploadDir is served under /uploads when media is stored locally.
	// Empty for remote stores, which hand out their own URLs.
	UploadDir string
}

// Server owns the router and the store. The store is closed when Start
// returns.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	deps   Deps
	tweets *service.TweetService
}

// New wires every handler. It does not start listening.
func New(cfg config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
		tweets: service.NewTweetService(deps.Store, deps.Store, deps.Media, logger),
	}
	s.setupRoutes(tokens)
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	GET  /healthz, /metrics, /uploads/*
//	/api/auth     signup, login, logout, GitHub sign-in, profiles, follows
//	/api/tweets   feed, search, tweets, toggles, comments   (auth)
//	/api/upload   tweet media                               (auth)
//	/api/admin    moderation                                (auth + admin)
//
// MIDDLEWARE ORDER MATTERS: request id first so every later layer can log
// it, the recoverer innermost of the global ones so panics are still
// logged and counted as 500s.
func (s *Server) setupRoutes(tokens *auth.TokenService) {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	var metrics *middleware.Metrics
	if s.config.Metrics.Enabled {
		metrics = middleware.NewMetrics()
		r.Use(metrics.Middleware)
	}
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{s.config.Server.FrontendURL},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler)

	// chi requires every Use before the first route.
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler())
	}
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	if s.deps.UploadDir != "" {
		files := http.FileServer(http.Dir(s.deps.UploadDir))
		r.Handle(media.PublicPrefix+"/*", http.StripPrefix(media.PublicPrefix+"/", files))
	}

	logger := s.logger
	store := s.deps.Store
	passwords := auth.NewPasswordService()

	var github *auth.GitHubProvider
	if gh := s.config.Auth.GitHub; gh.ClientID != "" {
		github = auth.NewGitHubProvider(gh.ClientID, gh.ClientSecret, gh.CallbackURL)
	}

	authHandler := handler.NewAuthHandler(
		service.NewAuthService(store, tokens, passwords, logger), github, tokens.TTL(), logger)
	userHandler := handler.NewUserHandler(service.NewUserService(store, s.deps.Media, logger), logger)
	tweetHandler := handler.NewTweetHandler(s.tweets, logger)
	adminHandler := handler.NewAdminHandler(s.tweets, logger)
	uploadHandler := handler.NewUploadHandler(service.NewMediaService(s.deps.Media, logger), logger)

	requireAuth := auth.RequireAuth(tokens)

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.HandleSignup)
			r.Post("/login", authHandler.HandleLogin)
			r.Post("/logout", authHandler.HandleLogout)
			if github != nil {
				r.Get("/github/login", authHandler.HandleGitHubLogin)
				r.Get("/github/callback", authHandler.HandleGitHubCallback)
			}

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", authHandler.HandleMe)
				r.Get("/profile/{userId}", userHandler.HandleProfile)
				r.Get("/profile/username/{username}", userHandler.HandleProfileByUsername)
				r.Get("/profile/username/{username}/followers", userHandler.HandleFollowers)
				r.Get("/profile/username/{username}/following", userHandler.HandleFollowing)
				r.Put("/profile", userHandler.HandleUpdateProfile)
				r.Post("/profile/picture", userHandler.HandleProfilePicture)
				r.Post("/follow/{userId}", userHandler.HandleFollow)
				r.Get("/suggested-users", userHandler.HandleSuggested)
			})
		})

		r.Route("/tweets", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", tweetHandler.HandleCreate)
			r.Get("/", tweetHandler.HandleFeed)
			r.Get("/search", tweetHandler.HandleSearch)
			r.Get("/user/{username}", tweetHandler.HandleByUser)
			r.Get("/hashtag/{tag}", tweetHandler.HandleByHashtag)
			r.Get("/trends", tweetHandler.HandleTrends)
			r.Post("/{id}/like", tweetHandler.HandleLike)
			r.Post("/{tweetId}/retweet", tweetHandler.HandleRetweet)
			r.Put("/{id}", tweetHandler.HandleUpdate)
			r.Delete("/{id}", tweetHandler.HandleDelete)
			r.Post("/{id}/comment", tweetHandler.HandleComment)
		})

		r.Route("/upload", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/tweet", uploadHandler.HandleTweetMedia)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, auth.RequireAdmin(store))
			r.Delete("/tweets/{id}", adminHandler.HandleModerate)
		})
	})
}

// Start serves until SIGINT or SIGTERM, then shuts down gracefully:
//  1. stop accepting connections
//  2. wait up to 30s for in-flight requests
//  3. wait for background media cleanup
//  4. close the store
func (s *Server) Start() error {
	defer s.deps.Store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // uploads up to 50MB
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("store", s.config.Store.Driver),
			slog.String("media", s.config.Media.Driver),
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

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.tweets.WaitForCleanup()
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
