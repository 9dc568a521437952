package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultTable is the table SQLStore keeps snapshots in
const DefaultTable = "persist_metadata"

// Dialect adapts SQLStore statements to a database
type Dialect struct {
	Name     string
	BlobType string
	// Numbered placeholders ($1) instead of ?
	Numbered bool
}

var (
	SQLite   = Dialect{Name: "sqlite3", BlobType: "BLOB"}
	Postgres = Dialect{Name: "pgx", BlobType: "BYTEA", Numbered: true}
)

// DialectFor returns the dialect of a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "sqlite3", "sqlite":
		return SQLite, nil
	case "pgx", "postgres", "postgresql":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported snapshot driver: %s", driver)
	}
}

func (d Dialect) placeholder(i int) string {
	if d.Numbered {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// SQLStore keeps snapshots in a database table
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	table   string
	config  Config
	now     func() time.Time
}

// NewSQLStore creates a store over db. Call Initialize before first use.
func NewSQLStore(db *sql.DB, dialect Dialect, config Config) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: dialect,
		table:   DefaultTable,
		config:  config,
		now:     time.Now,
	}
}

// Initialize ensures the snapshot table exists
func (s *SQLStore) Initialize(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	name VARCHAR(512) PRIMARY KEY,
	body %s NOT NULL,
	stored_at TIMESTAMP NOT NULL,
	expires_at TIMESTAMP
)`, s.table, s.dialect.BlobType)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize snapshot table: %w", err)
	}
	return nil
}

// Get retrieves a value
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf("SELECT body FROM %s WHERE name = %s AND (expires_at IS NULL OR expires_at > %s)",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))

	var body []byte
	err := s.db.QueryRowContext(ctx, query, s.config.Prefix+key, s.now()).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", key, err)
	}
	return body, nil
}

// Set stores a value, replacing an existing one
func (s *SQLStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	p := s.dialect.placeholder
	query := fmt.Sprintf(`
INSERT INTO %s (name, body, stored_at, expires_at)
VALUES (%s, %s, %s, %s)
ON CONFLICT (name) DO UPDATE SET
	body = excluded.body,
	stored_at = excluded.stored_at,
	expires_at = excluded.expires_at`, s.table, p(1), p(2), p(3), p(4))

	now := s.now()
	var expires sql.NullTime
	if ttl = ttlOrDefault(ttl, s.config.DefaultTTL); ttl > 0 {
		expires = sql.NullTime{Time: now.Add(ttl), Valid: true}
	}

	if _, err := s.db.ExecContext(ctx, query, s.config.Prefix+key, value, now, expires); err != nil {
		return fmt.Errorf("failed to store snapshot %s: %w", key, err)
	}
	return nil
}

// Delete removes a value
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name = %s", s.table, s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, s.config.Prefix+key); err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", key, err)
	}
	return nil
}

// Clear removes every value with the configured prefix
func (s *SQLStore) Clear(ctx context.Context) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE name LIKE %s", s.table, s.dialect.placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, s.config.Prefix+"%"); err != nil {
		return fmt.Errorf("failed to clear snapshots: %w", err)
	}
	return nil
}

// Exists checks if a live value exists
func (s *SQLStore) Exists(ctx context.Context, key string) (bool, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE name = %s AND (expires_at IS NULL OR expires_at > %s)",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))

	var count int
	if err := s.db.QueryRowContext(ctx, query, s.config.Prefix+key, s.now()).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check snapshot %s: %w", key, err)
	}
	return count > 0, nil
}

// Keys lists the live keys with the configured prefix
func (s *SQLStore) Keys(ctx context.Context) ([]string, error) {
	query := fmt.Sprintf("SELECT name FROM %s WHERE name LIKE %s AND (expires_at IS NULL OR expires_at > %s) ORDER BY name",
		s.table, s.dialect.placeholder(1), s.dialect.placeholder(2))

	rows, err := s.db.QueryContext(ctx, query, s.config.Prefix+"%", s.now())
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot name: %w", err)
		}
		keys = append(keys, strings.TrimPrefix(name, s.config.Prefix))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return keys, nil
}

// Close closes the database
func (s *SQLStore) Close() error {
	return s.db.Close()
}
