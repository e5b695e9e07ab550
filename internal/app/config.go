package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver

	"github.com/florianilch/directus-client/internal/token"
	"github.com/florianilch/directus-client/internal/tokenstore"
)

// LogFormat represents the logging output format.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// TokenStorageType represents the different storage types supported for cached tokens.
type TokenStorageType string

const (
	TokenStorageTypeMemory   TokenStorageType = "memory"
	TokenStorageTypeFile     TokenStorageType = "file"
	TokenStorageTypeKeyring  TokenStorageType = "keyring"
	TokenStorageTypePostgres TokenStorageType = "postgres"
)

// KeyringService is the keyring service name tokens are stored under.
const KeyringService = "directus-client"

// Default configuration values
const (
	DefaultConfigLogFormat             = LogFormatText
	DefaultConfigHTTPTimeout           = 30 * time.Second
	DefaultConfigTokenTTL              = token.DefaultTTL
	DefaultConfigTokenRefreshThreshold = token.DefaultThreshold
	DefaultConfigStorageType           = TokenStorageTypeFile
	DefaultConfigServerHost            = "127.0.0.1"
	DefaultConfigServerPort            = 4100
	DefaultConfigShutdownTimeout       = 5 * time.Second
)

// HTTPConfig holds settings for outbound Directus requests.
type HTTPConfig struct {
	// Timeout bounds each request, including reading the response.
	Timeout time.Duration `json:"timeout" validate:"gte=0"`
}

// TokenConfig holds the lifetime applied to issued tokens.
type TokenConfig struct {
	TTL time.Duration `json:"ttl" validate:"gt=0"`
	// RefreshThreshold is the window before expiry in which a token is
	// refreshed. Zero refreshes only once the token has expired.
	RefreshThreshold time.Duration `json:"refresh_threshold" validate:"gte=0,ltfield=TTL"`
}

// StorageConfig describes where cached tokens live.
type StorageConfig struct {
	Type TokenStorageType `json:"type" validate:"required,oneof=memory file keyring postgres"`

	// Backend-specific settings, only the one matching Type is used
	File        string `json:"file,omitempty"`
	KeyringUser string `json:"keyring_user,omitempty"`
	DatabaseURL string `json:"database_url,omitempty"`
}

// ServerConfig holds proxy server configuration.
type ServerConfig struct {
	Host string `json:"host" validate:"hostname_rfc1123|ip"`
	Port uint16 `json:"port"` // Port range 0-65535 handled by uint16 type
}

// ShutdownConfig holds shutdown behavior configuration.
type ShutdownConfig struct {
	// Timeout for graceful shutdown.
	Timeout time.Duration `json:"timeout"`
}

// Config holds the application's configuration.
type Config struct {
	// LogLevel for logging output (defaults to Info if unset).
	LogLevel  slog.Level `json:"log_level"`
	LogFormat LogFormat  `json:"log_format" validate:"oneof=text json"`
	// DSN is the Directus connection string, see directus.ParseDSN.
	DSN      string         `json:"dsn" validate:"required"`
	HTTP     HTTPConfig     `json:"http"`
	Token    TokenConfig    `json:"token"`
	Storage  StorageConfig  `json:"storage"`
	Server   ServerConfig   `json:"server"`
	Shutdown ShutdownConfig `json:"shutdown"`
}

// Default creates a new Config with default values applied.
func Default() (*Config, error) {
	cfg := &Config{Token: TokenConfig{RefreshThreshold: DefaultConfigTokenRefreshThreshold}}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

// DefaultValues returns the static defaults keyed by config path, for loaders
// that layer them beneath other sources. Unlike ApplyDefaults it covers
// fields whose zero value is meaningful.
func DefaultValues() map[string]any {
	return map[string]any{
		"log_format":              string(DefaultConfigLogFormat),
		"http.timeout":            DefaultConfigHTTPTimeout,
		"token.ttl":               DefaultConfigTokenTTL,
		"token.refresh_threshold": DefaultConfigTokenRefreshThreshold,
		"storage.type":            string(DefaultConfigStorageType),
		"server.host":             DefaultConfigServerHost,
		"server.port":             DefaultConfigServerPort,
		"shutdown.timeout":        DefaultConfigShutdownTimeout,
	}
}

// ApplyDefaults fills unset config fields with sensible defaults.
// Token.RefreshThreshold is left alone since zero is a valid threshold.
func (c *Config) ApplyDefaults() error {
	if c.LogFormat == "" {
		c.LogFormat = DefaultConfigLogFormat
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = DefaultConfigHTTPTimeout
	}
	if c.Token.TTL == 0 {
		c.Token.TTL = DefaultConfigTokenTTL
	}
	if c.Storage.Type == "" {
		c.Storage.Type = DefaultConfigStorageType
	}
	if c.Server.Host == "" {
		c.Server.Host = DefaultConfigServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultConfigServerPort
	}
	if c.Shutdown.Timeout == 0 {
		c.Shutdown.Timeout = DefaultConfigShutdownTimeout
	}

	// Dynamic defaults based on storage type
	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			configDir, err := os.UserConfigDir()
			if err != nil {
				return fmt.Errorf("storage.file required (auto-detect failed: %w)", err)
			}
			c.Storage.File = filepath.Join(configDir, "directus-client", "tokens.json")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			currentUser, err := user.Current()
			if err != nil {
				return fmt.Errorf("storage.keyring_user required (auto-detect failed: %w)", err)
			}
			c.Storage.KeyringUser = currentUser.Username
		}
	case TokenStorageTypePostgres, TokenStorageTypeMemory:
		// database_url must be explicitly configured (no sensible default)
	}

	return nil
}

// Validate validates the configuration using struct tags and enum values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	switch c.Storage.Type {
	case TokenStorageTypeFile:
		if c.Storage.File == "" {
			return errors.New("file path required for file storage")
		}
	case TokenStorageTypeKeyring:
		if c.Storage.KeyringUser == "" {
			return errors.New("keyring_user required for keyring storage")
		}
	case TokenStorageTypePostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database_url required for postgres storage")
		}
	}

	return nil
}

// TokenOptions returns the options applied to every issued token.
func (c *Config) TokenOptions() []token.Option {
	return []token.Option{
		token.WithTTL(c.Token.TTL),
		token.WithThreshold(c.Token.RefreshThreshold),
	}
}

// NewTokenStore creates the configured TokenStore. The caller must Close it;
// for persistent backends that is when cached tokens are written back.
func (s *StorageConfig) NewTokenStore(ctx context.Context) (tokenstore.TokenStore, error) {
	switch s.Type {
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(), nil
	case TokenStorageTypeFile:
		return tokenstore.NewFileStore(s.File)
	case TokenStorageTypeKeyring:
		return tokenstore.NewKeyringStore(KeyringService, s.KeyringUser)
	case TokenStorageTypePostgres:
		db, err := sql.Open("pgx", s.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("opening token database: %w", err)
		}
		store, err := tokenstore.NewPostgresStore(ctx, db)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return &dbTokenStore{PostgresStore: store, db: db}, nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", s.Type)
	}
}

// dbTokenStore owns the database handle behind a PostgresStore.
type dbTokenStore struct {
	*tokenstore.PostgresStore
	db *sql.DB
}

func (d *dbTokenStore) Close() error {
	return errors.Join(d.PostgresStore.Close(), d.db.Close())
}
