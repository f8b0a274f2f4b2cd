package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/social-feed/internal/config"
	"github.com/sakif/social-feed/internal/media"
	"github.com/sakif/social-feed/internal/repository"
	"github.com/sakif/social-feed/internal/repository/mongo"
	"github.com/sakif/social-feed/internal/repository/sqlite"
)

const connectTimeout = 10 * time.Second

// OpenStore opens the backend selected by cfg.Driver.
func OpenStore(ctx context.Context, cfg config.StoreConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.StoreSQLite:
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case config.StoreMongo:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// OpenMedia opens the media store selected by cfg.Driver. The returned
// directory is non-empty for local storage and should be served under
// media.PublicPrefix.
func OpenMedia(cfg config.MediaConfig) (media.Store, string, error) {
	switch cfg.Driver {
	case config.MediaLocal:
		local, err := media.NewLocalStore(cfg.UploadDir)
		if err != nil {
			return nil, "", err
		}
		return local, local.Root(), nil
	case config.MediaS3:
		s3, err := media.NewS3Store(media.S3Config(cfg.S3))
		if err != nil {
			return nil, "", err
		}
		return s3, "", nil
	default:
		return nil, "", fmt.Errorf("unknown media driver %q", cfg.Driver)
	}
}
