package commands

import (
	"context"
	"database/sql"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/cli/config"
	"github.com/conduit-lang/persist/internal/orm/factory"
	"github.com/conduit-lang/persist/internal/orm/schema"
	"github.com/conduit-lang/persist/internal/orm/snapshot"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver, snapshot.driver: postgres
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// globalOptions holds the persistent flags of the root command
type globalOptions struct {
	configPath  string
	definitions string
	verbose     bool
	noColor     bool
}

// session is a repository built from the configuration and definitions
type session struct {
	cfg     *config.Config
	log     *zap.Logger
	loader  *schema.Loader
	factory *factory.Factory
	repo    *schema.Repository
	store   snapshot.Cache
}

func newLogger(verbose bool) *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}

// openSession loads the configuration, the definitions and the snapshot
// store and builds a repository over them. adjust may change the
// repository options before the repository is created.
func openSession(ctx context.Context, opts *globalOptions, adjust func(*schema.Options)) (*session, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.definitions != "" {
		cfg.Definitions = opts.definitions
	}

	s := &session{cfg: cfg, log: newLogger(opts.verbose)}

	var defs *factory.Definitions
	if cfg.Definitions != "" {
		if defs, err = factory.LoadFile(cfg.Definitions); err != nil {
			return nil, err
		}
	}

	s.loader = schema.NewLoader("persist", nil)
	if defs != nil {
		if err := defs.DefineClasses(s.loader); err != nil {
			return nil, err
		}
	}

	if s.store, err = openSnapshot(ctx, cfg.Snapshot); err != nil {
		return nil, err
	}

	fopts := []factory.Option{factory.WithLogger(s.log), factory.WithTTL(cfg.Snapshot.TTL)}
	if s.store != nil {
		fopts = append(fopts, factory.WithStore(s.store))
	}
	s.factory = factory.New(defs, fopts...)

	ropts, err := cfg.RepositoryOptions()
	if err != nil {
		s.closeStore()
		return nil, err
	}
	ropts.Logger = s.log
	ropts.Factory = s.factory
	ropts.Loader = s.loader
	if adjust != nil {
		adjust(&ropts)
	}

	if s.repo, err = schema.NewRepository(ropts); err != nil {
		s.closeStore()
		return nil, err
	}
	s.log.Debug("session opened",
		zap.String("definitions", cfg.Definitions),
		zap.String("snapshot", cfg.Snapshot.Backend),
	)
	return s, nil
}

// openSnapshot returns the snapshot store of the configured backend, or nil
// for the none backend
func openSnapshot(ctx context.Context, cfg config.SnapshotConfig) (snapshot.Cache, error) {
	common := snapshot.DefaultConfig()
	if cfg.Prefix != "" {
		common.Prefix = cfg.Prefix
	}
	if cfg.TTL > 0 {
		common.DefaultTTL = cfg.TTL
	}

	switch cfg.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendMemory, "":
		return snapshot.NewMemoryCacheWithConfig(common), nil
	case config.BackendRedis:
		store, err := snapshot.NewRedisCache(ctx, snapshot.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Config:   common,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		return store, nil
	case config.BackendSQLite, config.BackendPostgres:
		driver := "sqlite3"
		if cfg.Backend == config.BackendPostgres {
			driver = cfg.Driver
			if driver == "" {
				driver = "pgx"
			}
		}
		dialect, err := snapshot.DialectFor(driver)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open(driver, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open snapshot database: %w", err)
		}
		store := snapshot.NewSQLStore(db, dialect, common)
		if err := store.Initialize(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown snapshot backend: %s", cfg.Backend)
	}
}

// resolveAll resolves every persistent type the factory knows, returning
// the descriptors that resolved and the combined errors of the rest
func (s *session) resolveAll() ([]*schema.ClassMetaData, error) {
	classes, err := s.repo.LoadPersistentTypes(false, s.loader)
	if err != nil {
		return nil, err
	}

	var metas []*schema.ClassMetaData
	var errs error
	for _, cls := range classes {
		meta, err := s.repo.MetaData(cls, s.loader, true)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		metas = append(metas, meta)
	}
	return metas, errs
}

// lookup finds a descriptor by type name or alias
func (s *session) lookup(name string) (*schema.ClassMetaData, error) {
	if cls, ok := s.loader.Load(name); ok {
		return s.repo.MetaData(cls, s.loader, true)
	}
	return s.repo.MetaDataByAlias(name, s.loader, true)
}

func (s *session) closeStore() {
	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.log.Warn("failed to close snapshot store", zap.Error(err))
		}
	}
}

// Close closes the repository and the snapshot store
func (s *session) Close() error {
	err := s.repo.Close()
	s.closeStore()
	_ = s.log.Sync()
	return err
}
