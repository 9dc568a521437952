package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/persist/internal/orm/schema"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	oldWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
}

func TestLoad(t *testing.T) {
	// No config file: defaults
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "meta|mapping", cfg.Repository.Resolve)
	assert.Equal(t, "meta|mapping|query", cfg.Repository.Source)
	assert.Equal(t, []string{"datastore", "application"}, cfg.Repository.Identity)
	assert.Equal(t, BackendMemory, cfg.Snapshot.Backend)
	assert.Equal(t, "persist:", cfg.Snapshot.Prefix)
	assert.Equal(t, "localhost:6379", cfg.Snapshot.Redis.Addr)
	assert.Empty(t, cfg.Definitions)
}

func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	configContent := `
definitions: types.yaml
repository:
  resolve: meta
  validate: meta|runtime
  preload: true
  cache_policy: Types=Employee
  identity: [application]
  default_identity: application
  strategies: [sequence, uuid-hex]
  types: [app.Person, app.Employee]
snapshot:
  backend: redis
  ttl: 10m
  redis:
    addr: cache:6380
    db: 2
`
	require.NoError(t, os.WriteFile("persist.yml", []byte(configContent), 0o644))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, filepath.IsAbs(cfg.Definitions))
	assert.Equal(t, "types.yaml", filepath.Base(cfg.Definitions))
	assert.Equal(t, "meta", cfg.Repository.Resolve)
	assert.True(t, cfg.Repository.Preload)
	assert.Equal(t, []string{"app.Person", "app.Employee"}, cfg.Repository.Types)
	assert.Equal(t, BackendRedis, cfg.Snapshot.Backend)
	assert.Equal(t, 10*time.Minute, cfg.Snapshot.TTL)
	assert.Equal(t, "cache:6380", cfg.Snapshot.Redis.Addr)
	assert.Equal(t, 2, cfg.Snapshot.Redis.DB)

	o, err := cfg.RepositoryOptions()
	require.NoError(t, err)
	assert.Equal(t, schema.ModeMeta, o.Resolve)
	assert.Equal(t, schema.ValidateMeta|schema.ValidateRuntime, o.Validate)
	assert.Equal(t, []schema.IdentityType{schema.IdentityApplication}, o.IdentityTypes)
	assert.Equal(t, schema.IdentityApplication, o.DefaultIdentity)
	assert.Equal(t, []schema.ValueStrategy{schema.StrategySequence, schema.StrategyUUIDHex}, o.Strategies)
	assert.Equal(t, "Types=Employee", o.CachePolicy)
	assert.True(t, o.Preload)
}

func TestLoadExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("snapshot:\n  backend: none\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendNone, cfg.Snapshot.Backend)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PERSIST_SNAPSHOT_BACKEND", "sqlite")
	t.Setenv("PERSIST_SNAPSHOT_DSN", "file:persist.db")
	t.Setenv("PERSIST_REPOSITORY_RESOLVE", "meta|mapping|mapping_init")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Snapshot.Backend)
	assert.Equal(t, "file:persist.db", cfg.Snapshot.DSN)

	o, err := cfg.RepositoryOptions()
	require.NoError(t, err)
	assert.Equal(t, schema.ModeMeta|schema.ModeMapping|schema.ModeMappingInit, o.Resolve)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		wantErr string
	}{
		{
			name:    "unknown backend",
			config:  "snapshot:\n  backend: floppy\n",
			wantErr: "snapshot.backend must be one of",
		},
		{
			name:    "sql backend without dsn",
			config:  "snapshot:\n  backend: postgres\n",
			wantErr: "snapshot.dsn is required for the postgres backend",
		},
		{
			name:    "unknown postgres driver",
			config:  "snapshot:\n  backend: postgres\n  dsn: postgres://localhost/persist\n  driver: odbc\n",
			wantErr: "snapshot.driver must be pgx or postgres, got: odbc",
		},
		{
			name:    "redis backend without address",
			config:  "snapshot:\n  backend: redis\n  redis:\n    addr: \"\"\n",
			wantErr: "snapshot.redis.addr is required",
		},
		{
			name:    "negative ttl",
			config:  "snapshot:\n  ttl: -1s\n",
			wantErr: "snapshot.ttl must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "persist.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.config), 0o644))

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRepositoryOptionsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RepositoryConfig)
		want   string
	}{
		{"resolve", func(r *RepositoryConfig) { r.Resolve = "everything" }, "repository.resolve"},
		{"validate", func(r *RepositoryConfig) { r.Validate = "strict" }, "repository.validate"},
		{"identity", func(r *RepositoryConfig) { r.Identity = []string{"magic"} }, "repository.identity"},
		{"strategies", func(r *RepositoryConfig) { r.Strategies = []string{"guess"} }, "repository.strategies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			cfg, err := Load("")
			require.NoError(t, err)

			tt.mutate(&cfg.Repository)
			_, err = cfg.RepositoryOptions()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
