// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Doorward Contributors

// Package config loads and validates service configuration. Values are
// layered: built-in defaults, then an optional YAML file, then command-line
// flags. The YAML file is checked against a generated JSON Schema before it
// is merged.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Session store backends.
const (
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

// ServerConfig holds the public HTTP API settings.
type ServerConfig struct {
	Addr        string   `koanf:"addr" json:"addr,omitempty" jsonschema:"description=HTTP listen address"`
	CORSOrigins []string `koanf:"cors_origins" json:"cors_origins,omitempty" jsonschema:"description=Allowed CORS origin patterns (glob syntax)"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL string `koanf:"url" json:"url,omitempty" jsonschema:"description=PostgreSQL connection URL,format=uri"`
}

// RedisConfig holds Redis settings for the redis session store.
type RedisConfig struct {
	Addr     string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Redis server address"`
	Password string `koanf:"password" json:"password,omitempty" jsonschema:"description=Redis password"`
	DB       int    `koanf:"db" json:"db,omitempty" jsonschema:"description=Redis database number,minimum=0"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	Store         string        `koanf:"store" json:"store,omitempty" jsonschema:"description=Session store backend,enum=postgres,enum=redis,enum=memory"`
	TTL           time.Duration `koanf:"ttl" json:"ttl,omitempty" jsonschema:"description=Session lifetime,type=string"`
	SweepInterval time.Duration `koanf:"sweep_interval" json:"sweep_interval,omitempty" jsonschema:"description=Interval between expired-session sweeps,type=string"`
	CookieName    string        `koanf:"cookie_name" json:"cookie_name,omitempty" jsonschema:"description=Session cookie name"`
	CookieSecure  bool          `koanf:"cookie_secure" json:"cookie_secure,omitempty" jsonschema:"description=Set the Secure attribute on the session cookie"`
}

// PasswordConfig holds password hashing settings.
type PasswordConfig struct {
	Scheme     string `koanf:"scheme" json:"scheme,omitempty" jsonschema:"description=Password hashing scheme,enum=argon2id,enum=bcrypt"`
	BcryptCost int    `koanf:"bcrypt_cost" json:"bcrypt_cost,omitempty" jsonschema:"description=bcrypt cost factor,minimum=4,maximum=31"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"description=Log level,enum=debug,enum=info,enum=warn,enum=error"`
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"description=Log output format,enum=json,enum=text"`
}

// MetricsConfig holds observability settings.
type MetricsConfig struct {
	Addr string `koanf:"addr" json:"addr,omitempty" jsonschema:"description=Metrics/health HTTP address (empty disables)"`
}

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig   `koanf:"server" json:"server,omitempty"`
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	Redis    RedisConfig    `koanf:"redis" json:"redis,omitempty"`
	Session  SessionConfig  `koanf:"session" json:"session,omitempty"`
	Password PasswordConfig `koanf:"password" json:"password,omitempty"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty"`
}

// Default returns a Config populated with built-in defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
		},
		Session: SessionConfig{
			Store:         StorePostgres,
			TTL:           24 * time.Hour,
			SweepInterval: 5 * time.Minute,
			CookieName:    "doorward_session",
		},
		Password: PasswordConfig{
			Scheme:     "argon2id",
			BcryptCost: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Addr: "127.0.0.1:9100",
		},
	}
}

// Load builds the effective configuration. path is an optional YAML file;
// flags is an optional pflag set whose explicitly-set flags override file
// values (flag names map to keys by replacing "-" with ".").
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec // path comes from operator flag
		if err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
		}
		if err := ValidateSchema(raw); err != nil {
			return nil, oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_PARSE_FAILED").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithValue(flags, ".", k, func(key, value string) (string, any) {
			return strings.ReplaceAll(key, "-", "."), value
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_FAILED").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_UNMARSHAL_FAILED").Wrap(err)
	}

	// DATABASE_URL from the environment fills in a missing database.url so
	// containerized deployments need no config file.
	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("server.addr is required")
	}

	switch c.Session.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database.url is required for the postgres session store")
		}
	case StoreRedis:
		if c.Redis.Addr == "" {
			return oops.Code("CONFIG_INVALID").Errorf("redis.addr is required for the redis session store")
		}
		if c.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").Errorf("database.url is required (users are stored in postgres)")
		}
	case StoreMemory:
		// No backing services required.
	default:
		return oops.Code("CONFIG_INVALID").
			With("store", c.Session.Store).
			Errorf("session.store must be one of postgres, redis, memory")
	}

	if c.Session.TTL <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.ttl must be positive")
	}
	if c.Session.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").Errorf("session.sweep_interval must be positive")
	}
	if c.Session.CookieName == "" {
		return oops.Code("CONFIG_INVALID").Errorf("session.cookie_name is required")
	}

	if c.Password.Scheme != "argon2id" && c.Password.Scheme != "bcrypt" {
		return oops.Code("CONFIG_INVALID").
			With("scheme", c.Password.Scheme).
			Errorf("password.scheme must be argon2id or bcrypt")
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			With("format", c.Log.Format).
			Errorf("log.format must be json or text")
	}

	return nil
}
