// Package config holds the settings shared by the viewdb server and CLI.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CounterPersistence = "persistence"
	CounterDuckDB      = "duckdb"
	CounterSQLite      = "sqlite3"
)

// Config holds the configuration of a viewdb process.
type Config struct {
	// Identity recorded on every commit
	Identity IdentityConfig `json:"identity" yaml:"identity"`

	Server   ServerConfig   `json:"server" yaml:"server"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Auth     AuthConfig     `json:"auth" yaml:"auth"`
	Counter  CounterConfig  `json:"counter" yaml:"counter"`
	Snapshot SnapshotConfig `json:"snapshot" yaml:"snapshot"`
}

type IdentityConfig struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// ServerConfig holds TCP and metrics listener configuration.
type ServerConfig struct {
	Addr        string   `json:"addr" yaml:"addr"`
	MetricsAddr string   `json:"metrics_addr" yaml:"metrics_addr"`
	IdleTimeout Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// StorageConfig selects the Git repository. An empty BaseDir keeps
// everything in memory.
type StorageConfig struct {
	BaseDir string `json:"base_dir" yaml:"base_dir"`
	GitURL  string `json:"git_url" yaml:"git_url"`
}

// AuthConfig enables JWT authentication on the server when JWTSecret is set.
type AuthConfig struct {
	JWTSecret  string `json:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer  string `json:"jwt_issuer" yaml:"jwt_issuer"`
	NameClaim  string `json:"name_claim" yaml:"name_claim"`
	EmailClaim string `json:"email_claim" yaml:"email_claim"`
}

// CounterConfig selects where materialized rows are counted.
type CounterConfig struct {
	Driver      string `json:"driver" yaml:"driver"`
	DSN         string `json:"dsn" yaml:"dsn"`
	TablePrefix string `json:"table_prefix" yaml:"table_prefix"`
}

// SnapshotConfig holds credentials for s3:// snapshot locations.
type SnapshotConfig struct {
	Region    string `json:"region" yaml:"region"`
	Endpoint  string `json:"endpoint" yaml:"endpoint"`
	AccessKey string `json:"access_key" yaml:"access_key"`
	SecretKey string `json:"secret_key" yaml:"secret_key"`
}

// Duration is a time.Duration written as "30s" or "5m" in YAML, JSON and
// environment variables.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns the configuration for a local in-memory instance.
func DefaultConfig() *Config {
	return &Config{
		Identity: IdentityConfig{
			Name:  "viewdb",
			Email: "viewdb@localhost",
		},
		Server: ServerConfig{
			Addr:        ":3306",
			MetricsAddr: "",
			IdleTimeout: Duration(5 * time.Minute),
		},
		Auth: AuthConfig{
			NameClaim:  "name",
			EmailClaim: "email",
		},
		Counter: CounterConfig{
			Driver:      CounterPersistence,
			TablePrefix: "mv_",
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Identity.Name == "" || c.Identity.Email == "" {
		return errors.New("identity.name and identity.email are required")
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}

	switch c.Counter.Driver {
	case CounterPersistence, CounterDuckDB, CounterSQLite:
	default:
		return fmt.Errorf("invalid counter driver: %s (must be persistence, duckdb, or sqlite3)", c.Counter.Driver)
	}

	if c.Storage.GitURL != "" && c.Storage.BaseDir == "" {
		return errors.New("storage.base_dir is required when storage.git_url is set")
	}

	if c.Auth.JWTSecret != "" && (c.Auth.NameClaim == "" || c.Auth.EmailClaim == "") {
		return errors.New("auth.name_claim and auth.email_claim are required with a JWT secret")
	}

	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			existing = append(existing, path)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// LoadFromEnv overrides cfg from environment variables with the VIEWDB_ prefix.
func LoadFromEnv(cfg *Config) error {
	overrides := map[string]*string{
		"VIEWDB_IDENTITY_NAME":   &cfg.Identity.Name,
		"VIEWDB_IDENTITY_EMAIL":  &cfg.Identity.Email,
		"VIEWDB_SERVER_ADDR":     &cfg.Server.Addr,
		"VIEWDB_METRICS_ADDR":    &cfg.Server.MetricsAddr,
		"VIEWDB_BASE_DIR":        &cfg.Storage.BaseDir,
		"VIEWDB_GIT_URL":         &cfg.Storage.GitURL,
		"VIEWDB_JWT_SECRET":      &cfg.Auth.JWTSecret,
		"VIEWDB_JWT_ISSUER":      &cfg.Auth.JWTIssuer,
		"VIEWDB_JWT_NAME_CLAIM":  &cfg.Auth.NameClaim,
		"VIEWDB_JWT_EMAIL_CLAIM": &cfg.Auth.EmailClaim,
		"VIEWDB_COUNTER_DRIVER":  &cfg.Counter.Driver,
		"VIEWDB_COUNTER_DSN":     &cfg.Counter.DSN,
		"VIEWDB_COUNTER_PREFIX":  &cfg.Counter.TablePrefix,
		"VIEWDB_S3_REGION":       &cfg.Snapshot.Region,
		"VIEWDB_S3_ENDPOINT":     &cfg.Snapshot.Endpoint,
		"VIEWDB_S3_ACCESS_KEY":   &cfg.Snapshot.AccessKey,
		"VIEWDB_S3_SECRET_KEY":   &cfg.Snapshot.SecretKey,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}

	if v := os.Getenv("VIEWDB_IDLE_TIMEOUT"); v != "" {
		if err := cfg.Server.IdleTimeout.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("VIEWDB_IDLE_TIMEOUT: %w", err)
		}
	}
	return nil
}

// Load builds the effective configuration: defaults, then the optional
// config file, then .env files, then VIEWDB_ variables.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := LoadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
