// Package config loads service configuration from a YAML file, an optional
// .env file and PICKLY_* environment overrides, in that order of precedence
// (environment wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration document.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Access    AccessConfig    `yaml:"access"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Cookies   CookieConfig    `yaml:"cookies"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// TrustProxy honors X-Forwarded-For/X-Real-IP for client addresses.
	TrustProxy bool `yaml:"trust_proxy"`
}

// DatabaseConfig selects the storage backend. Driver is one of "pgx",
// "sqlite3" or "memory".
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate"`
	AutoSeed        bool          `yaml:"auto_seed"`
}

type AuthConfig struct {
	Issuer           string        `yaml:"issuer"`
	AccessSecret     string        `yaml:"access_secret"`
	RefreshSecret    string        `yaml:"refresh_secret"`
	AccessTTL        time.Duration `yaml:"access_ttl"`
	RefreshTTL       time.Duration `yaml:"refresh_ttl"`
	SessionScanLimit int           `yaml:"session_scan_limit"`
	Argon            ArgonConfig   `yaml:"argon"`
}

// ArgonConfig holds argon2id cost parameters. Memory is in KiB.
type ArgonConfig struct {
	Time    uint32 `yaml:"time"`
	Memory  uint32 `yaml:"memory"`
	Threads uint8  `yaml:"threads"`
}

type AccessConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// Permissions maps an access profile id to RESOURCE:ACTION codes. When
	// empty the built-in catalog is used.
	Permissions map[string][]string `yaml:"permissions"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type RateLimitConfig struct {
	Burst     int `yaml:"burst"`
	PerSecond int `yaml:"per_second"`
}

type CookieConfig struct {
	Secure bool   `yaml:"secure"`
	Domain string `yaml:"domain"`
}

// Default returns configuration suitable for local development.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			GRPCAddr:        ":9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			MaxBodyBytes:    1 << 20,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:          "memory",
			MaxOpenConns:    10,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:           "pickly",
			AccessTTL:        15 * time.Minute,
			RefreshTTL:       7 * 24 * time.Hour,
			SessionScanLimit: 10,
			Argon: ArgonConfig{
				Time:    3,
				Memory:  64 * 1024,
				Threads: 1,
			},
		},
		Access: AccessConfig{
			CacheTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		RateLimit: RateLimitConfig{
			Burst:     20,
			PerSecond: 5,
		},
	}
}

// Load reads configuration. A missing file at path is not an error; the
// defaults plus environment are used instead.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var problems []string
	switch c.Database.Driver {
	case "memory":
	case "pgx", "sqlite3":
		if strings.TrimSpace(c.Database.DSN) == "" {
			problems = append(problems, "database.dsn is required")
		}
		if c.Auth.AccessSecret == "" || c.Auth.RefreshSecret == "" {
			problems = append(problems, "auth.access_secret and auth.refresh_secret are required")
		}
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}
	if c.Auth.AccessSecret != "" && c.Auth.AccessSecret == c.Auth.RefreshSecret {
		problems = append(problems, "auth.access_secret and auth.refresh_secret must differ")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 {
		problems = append(problems, "auth token ttls must be positive")
	}
	if c.Auth.SessionScanLimit <= 0 {
		problems = append(problems, "auth.session_scan_limit must be positive")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.PerSecond <= 0 {
		problems = append(problems, "rate_limit values must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	str("PICKLY_HTTP_ADDR", &cfg.Server.Addr)
	str("PICKLY_GRPC_ADDR", &cfg.Server.GRPCAddr)
	str("PICKLY_DB_DRIVER", &cfg.Database.Driver)
	str("PICKLY_DB_DSN", &cfg.Database.DSN)
	str("PICKLY_JWT_ISSUER", &cfg.Auth.Issuer)
	str("PICKLY_JWT_ACCESS_SECRET", &cfg.Auth.AccessSecret)
	str("PICKLY_JWT_REFRESH_SECRET", &cfg.Auth.RefreshSecret)
	str("PICKLY_LOG_LEVEL", &cfg.Logging.Level)
	str("PICKLY_LOG_FORMAT", &cfg.Logging.Format)
	str("PICKLY_COOKIE_DOMAIN", &cfg.Cookies.Domain)

	for key, dst := range map[string]*time.Duration{
		"PICKLY_JWT_ACCESS_TTL":   &cfg.Auth.AccessTTL,
		"PICKLY_JWT_REFRESH_TTL":  &cfg.Auth.RefreshTTL,
		"PICKLY_ACCESS_CACHE_TTL": &cfg.Access.CacheTTL,
	} {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := os.LookupEnv("PICKLY_SESSION_SCAN_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PICKLY_SESSION_SCAN_LIMIT: %w", err)
		}
		cfg.Auth.SessionScanLimit = n
	}
	for key, dst := range map[string]*bool{
		"PICKLY_COOKIE_SECURE":   &cfg.Cookies.Secure,
		"PICKLY_DB_AUTO_MIGRATE": &cfg.Database.AutoMigrate,
		"PICKLY_TRUST_PROXY":     &cfg.Server.TrustProxy,
	} {
		v, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		*dst = b
	}
	return nil
}
