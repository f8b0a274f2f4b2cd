// Package main is the entry point for the social feed API server.
//
// The main package stays minimal. Its job is to:
//  1. read configuration (defaults, YAML file, .env, environment)
//  2. open the backends the configuration names
//  3. start the server
//
// Everything else lives in internal/. Operator tasks (granting admin,
// repairing retweet state) live in cmd/feedctl.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/sakif/social-feed/internal/config"
	"github.com/sakif/social-feed/internal/server"
)

func main() {
	// === 1. READ CONFIGURATION ===
	// -config wins over CONFIG_PATH. Without either, defaults + env only.
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 2. SET UP LOGGING ===
	logger := cfg.Log.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// === 3. OPEN BACKENDS ===
	store, err := server.OpenStore(context.Background(), cfg.Store)
	if err != nil {
		logger.Error("failed to open store",
			slog.String("driver", cfg.Store.Driver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	mediaStore, uploadDir, err := server.OpenMedia(cfg.Media)
	if err != nil {
		store.Close()
		logger.Error("failed to open media store",
			slog.String("driver", cfg.Media.Driver),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	if cfg.Auth.GitHub.ClientID == "" {
		logger.Info("GITHUB_CLIENT_ID not set, GitHub sign-in is disabled")
	}

	// === 4. CREATE AND START THE SERVER ===
	srv, err := server.New(cfg, server.Deps{Store: store, Media: mediaStore, UploadDir: uploadDir}, logger)
	if err != nil {
		store.Close()
		logger.Error("failed to create server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Start blocks until SIGINT/SIGTERM and closes the store on the way out.
	if err := srv.Start(); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
