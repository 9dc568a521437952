package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Snapshot backends
const (
	BackendNone     = "none"
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config represents the persist configuration
type Config struct {
	// Definitions is the path of the type definitions file
	Definitions string           `mapstructure:"definitions"`
	Repository  RepositoryConfig `mapstructure:"repository"`
	Snapshot    SnapshotConfig   `mapstructure:"snapshot"`
}

// RepositoryConfig represents metadata repository configuration
type RepositoryConfig struct {
	Resolve  string `mapstructure:"resolve"`
	Validate string `mapstructure:"validate"`
	Source   string `mapstructure:"source"`
	Preload  bool   `mapstructure:"preload"`
	// CachePolicy is the data cache include/exclude list
	CachePolicy     string   `mapstructure:"cache_policy"`
	Identity        []string `mapstructure:"identity"`
	DefaultIdentity string   `mapstructure:"default_identity"`
	Strategies      []string `mapstructure:"strategies"`
	Types           []string `mapstructure:"types"`
}

// SnapshotConfig represents snapshot store configuration
type SnapshotConfig struct {
	Backend string        `mapstructure:"backend"`
	Prefix  string        `mapstructure:"prefix"`
	TTL     time.Duration `mapstructure:"ttl"`
	DSN     string        `mapstructure:"dsn"`
	// Driver selects the database/sql driver of the postgres backend,
	// pgx or postgres (lib/pq)
	Driver string      `mapstructure:"driver"`
	Redis  RedisConfig `mapstructure:"redis"`
}

// RedisConfig represents Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load loads the configuration from path, or from persist.yml or
// persist.yaml in the working directory when path is empty. Environment
// variables prefixed with PERSIST_ override file values.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("definitions", "")
	v.SetDefault("repository.resolve", "meta|mapping")
	v.SetDefault("repository.validate", "meta|mapping")
	v.SetDefault("repository.source", "meta|mapping|query")
	v.SetDefault("repository.preload", false)
	v.SetDefault("repository.cache_policy", "")
	v.SetDefault("repository.identity", []string{"datastore", "application"})
	v.SetDefault("repository.default_identity", "datastore")
	v.SetDefault("repository.strategies", []string{
		"native", "sequence", "autoassign", "increment", "uuid-string", "uuid-hex",
	})
	v.SetDefault("repository.types", []string{})
	v.SetDefault("snapshot.backend", BackendMemory)
	v.SetDefault("snapshot.prefix", "persist:")
	v.SetDefault("snapshot.ttl", time.Duration(0))
	v.SetDefault("snapshot.dsn", "")
	v.SetDefault("snapshot.driver", "pgx")
	v.SetDefault("snapshot.redis.addr", "localhost:6379")
	v.SetDefault("snapshot.redis.password", "")
	v.SetDefault("snapshot.redis.db", 0)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("persist")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Enable environment variable support
	v.SetEnvPrefix("PERSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if config.Definitions != "" && !filepath.IsAbs(config.Definitions) && v.ConfigFileUsed() != "" {
		config.Definitions = filepath.Join(filepath.Dir(v.ConfigFileUsed()), config.Definitions)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// RepositoryOptions converts the repository section to schema options
func (c *Config) RepositoryOptions() (schema.Options, error) {
	o := schema.DefaultOptions()
	r := c.Repository

	var err error
	if o.Resolve, err = schema.ParseMode(r.Resolve); err != nil {
		return o, fmt.Errorf("repository.resolve: %w", err)
	}
	if o.Source, err = schema.ParseMode(r.Source); err != nil {
		return o, fmt.Errorf("repository.source: %w", err)
	}
	if o.Validate, err = ParseValidate(r.Validate); err != nil {
		return o, fmt.Errorf("repository.validate: %w", err)
	}
	if o.DefaultIdentity, err = schema.ParseIdentityType(r.DefaultIdentity); err != nil {
		return o, fmt.Errorf("repository.default_identity: %w", err)
	}

	o.IdentityTypes = nil
	for _, s := range r.Identity {
		id, err := schema.ParseIdentityType(s)
		if err != nil {
			return o, fmt.Errorf("repository.identity: %w", err)
		}
		o.IdentityTypes = append(o.IdentityTypes, id)
	}
	o.Strategies = nil
	for _, s := range r.Strategies {
		strategy, err := schema.ParseValueStrategy(s)
		if err != nil {
			return o, fmt.Errorf("repository.strategies: %w", err)
		}
		o.Strategies = append(o.Strategies, strategy)
	}

	o.Types = r.Types
	o.CachePolicy = r.CachePolicy
	o.Preload = r.Preload
	return o, nil
}

// ParseValidate converts a "|" or "," separated list of none, meta, mapping
// and runtime to validation flags
func ParseValidate(s string) (schema.Validate, error) {
	var v schema.Validate
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' }) {
		switch strings.TrimSpace(part) {
		case "none":
		case "meta":
			v |= schema.ValidateMeta
		case "mapping":
			v |= schema.ValidateMapping
		case "runtime":
			v |= schema.ValidateRuntime
		default:
			return 0, fmt.Errorf("unknown validation: %s", part)
		}
	}
	return v, nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	switch cfg.Snapshot.Backend {
	case BackendNone, BackendMemory:
	case BackendRedis:
		if cfg.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("snapshot.redis.addr is required for the redis backend")
		}
	case BackendSQLite, BackendPostgres:
		if cfg.Snapshot.DSN == "" {
			return fmt.Errorf("snapshot.dsn is required for the %s backend", cfg.Snapshot.Backend)
		}
		if cfg.Snapshot.Backend == BackendPostgres && cfg.Snapshot.Driver != "pgx" && cfg.Snapshot.Driver != "postgres" {
			return fmt.Errorf("snapshot.driver must be pgx or postgres, got: %s", cfg.Snapshot.Driver)
		}
	default:
		return fmt.Errorf("snapshot.backend must be one of none, memory, redis, sqlite, postgres, got: %s", cfg.Snapshot.Backend)
	}
	if cfg.Snapshot.TTL < 0 {
		return fmt.Errorf("snapshot.ttl must not be negative, got: %s", cfg.Snapshot.TTL)
	}
	return nil
}
