// Package config loads the server and CLI configuration.
//
// Sources, later ones winning:
//
//  1. Default()
//  2. an optional YAML file (-config flag or CONFIG_PATH)
//  3. a .env file, loaded into the process environment without overriding
//     variables that are already set
//  4. environment variables (PORT, STORE_DRIVER, JWT_SECRET, ...)
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Driver names accepted by Validate.
const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
	MediaLocal  = "local"
	MediaS3     = "s3"
)

// Config is the complete application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Media   MediaConfig   `yaml:"media"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
	// FrontendURL is the only origin allowed by CORS.
	FrontendURL string `yaml:"frontendUrl"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"` // "sqlite" or "mongo"
	SQLitePath    string `yaml:"sqlitePath"`
	MongoURI      string `yaml:"mongoUri"`
	MongoDatabase string `yaml:"mongoDatabase"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwtSecret"`
	TokenTTL  time.Duration `yaml:"tokenTtl"`
	GitHub    GitHubConfig  `yaml:"github"`
}

// GitHubConfig enables GitHub sign-in when ClientID is set.
type GitHubConfig struct {
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	CallbackURL  string `yaml:"callbackUrl"`
}

type MediaConfig struct {
	Driver    string   `yaml:"driver"` // "local" or "s3"
	UploadDir string   `yaml:"uploadDir"`
	S3        S3Config `yaml:"s3"`
}

type S3Config struct {
	Endpoint       string `yaml:"endpoint"`
	PublicEndpoint string `yaml:"publicEndpoint"`
	Region         string `yaml:"region"`
	Bucket         string `yaml:"bucket"`
	AccessKey      string `yaml:"accessKey"`
	SecretKey      string `yaml:"secretKey"`
	SSLDisabled    bool   `yaml:"sslDisabled"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns a configuration that runs locally against an SQLite file
// and stores uploads on disk. JWTSecret is deliberately empty.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 5000, FrontendURL: "http://localhost:5173"},
		Store: StoreConfig{
			Driver:        StoreSQLite,
			SQLitePath:    "data/feed.db",
			MongoDatabase: "social_feed",
		},
		Auth:    AuthConfig{TokenTTL: 7 * 24 * time.Hour},
		Media:   MediaConfig{Driver: MediaLocal, UploadDir: "uploads", S3: S3Config{Region: "us-east-1"}},
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty), the given .env files (".env" when none are given;
// missing files are skipped) and the environment.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("config: loading %s: %w", f, err)
		}
	}

	if err := cfg.ResolveEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ResolveEnv overrides fields with any environment variables that are set.
func (c *Config) ResolveEnv() error {
	str := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	str(&c.Server.FrontendURL, "FRONTEND_URL")

	str(&c.Store.Driver, "STORE_DRIVER")
	str(&c.Store.SQLitePath, "SQLITE_PATH")
	str(&c.Store.MongoURI, "MONGO_URI")
	str(&c.Store.MongoDatabase, "MONGO_DATABASE")

	str(&c.Auth.JWTSecret, "JWT_SECRET")
	if v, ok := os.LookupEnv("TOKEN_TTL"); ok {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: invalid TOKEN_TTL %q: %w", v, err)
		}
		c.Auth.TokenTTL = ttl
	}
	str(&c.Auth.GitHub.ClientID, "GITHUB_CLIENT_ID")
	str(&c.Auth.GitHub.ClientSecret, "GITHUB_CLIENT_SECRET")
	str(&c.Auth.GitHub.CallbackURL, "GITHUB_CALLBACK_URL")

	str(&c.Media.Driver, "MEDIA_DRIVER")
	str(&c.Media.UploadDir, "UPLOAD_DIR")
	str(&c.Media.S3.Endpoint, "S3_ENDPOINT")
	str(&c.Media.S3.PublicEndpoint, "S3_PUBLIC_ENDPOINT")
	str(&c.Media.S3.Region, "S3_REGION")
	str(&c.Media.S3.Bucket, "S3_BUCKET")
	str(&c.Media.S3.AccessKey, "S3_ACCESS_KEY")
	str(&c.Media.S3.SecretKey, "S3_SECRET_KEY")
	if v, ok := os.LookupEnv("S3_SSL_DISABLED"); ok {
		c.Media.S3.SSLDisabled = v == "true" || v == "1"
	}

	str(&c.Log.Level, "LOG_LEVEL")
	str(&c.Log.Format, "LOG_FORMAT")
	if v, ok := os.LookupEnv("METRICS_ENABLED"); ok {
		c.Metrics.Enabled = v != "false" && v != "0"
	}
	return nil
}

// Validate reports the first setting the server cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}

	switch c.Store.Driver {
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return errors.New("config: store.sqlitePath is required for the sqlite driver")
		}
	case StoreMongo:
		if c.Store.MongoURI == "" || c.Store.MongoDatabase == "" {
			return errors.New("config: MONGO_URI and MONGO_DATABASE are required for the mongo driver")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	if len(c.Auth.JWTSecret) < 16 {
		return errors.New("config: JWT_SECRET must be at least 16 characters")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("config: token TTL must be positive")
	}

	switch c.Media.Driver {
	case MediaLocal:
		if c.Media.UploadDir == "" {
			return errors.New("config: media.uploadDir is required for the local driver")
		}
	case MediaS3:
		if c.Media.S3.Bucket == "" || c.Media.S3.Endpoint == "" {
			return errors.New("config: S3_ENDPOINT and S3_BUCKET are required for the s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown media driver %q", c.Media.Driver)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// NewLogger builds the slog logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", s)
	}
	return level, nil
}
