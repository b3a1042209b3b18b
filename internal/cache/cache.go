// Package cache is a SQLite-backed key-value store with per-entry tags and
// expiry. It holds access tokens and folder listings shared between
// gdrive-go processes.
package cache

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	sqlGet = `SELECT value, expires_at FROM cache_entries WHERE key = ?`

	sqlPut = `INSERT INTO cache_entries (key, tag, value, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 tag = excluded.tag,
		 value = excluded.value,
		 expires_at = excluded.expires_at`

	sqlDelete    = `DELETE FROM cache_entries WHERE key = ?`
	sqlDeleteTag = `DELETE FROM cache_entries WHERE tag = ?`
	sqlPurge     = `DELETE FROM cache_entries WHERE expires_at <= ?`

	sqlStats = `SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0)
		FROM cache_entries WHERE tag = ? OR ? = ''`
)

// Store is the cache database. The zero value is not usable; call Open.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Stats summarizes the entries of one tag (or all tags).
type Stats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
}

// Open opens (creating if needed) the cache database at dbPath and applies
// pending migrations. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("cache database ready", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// runMigrations applies all pending schema migrations to the database.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	// Strip the "migrations/" prefix so goose sees files at the root of the FS.
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("cache: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("cache: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("cache: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Get returns the value stored under key. Missing and expired entries both
// report ok=false with a nil error.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt int64
	)

	err := s.db.QueryRowContext(ctx, sqlGet, key).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("cache: reading %q: %w", key, err)
	}

	if expiresAt <= s.now().UnixMilli() {
		return nil, false, nil
	}

	return value, true, nil
}

// Put stores value under key for ttl. A non-positive ttl stores an entry
// that is already expired, which Get never returns.
func (s *Store) Put(ctx context.Context, key, tag string, value []byte, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).UnixMilli()

	if _, err := s.db.ExecContext(ctx, sqlPut, key, tag, value, expiresAt); err != nil {
		return fmt.Errorf("cache: writing %q: %w", key, err)
	}

	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, key); err != nil {
		return fmt.Errorf("cache: deleting %q: %w", key, err)
	}

	return nil
}

// DeleteTag removes every entry written with tag and returns how many were
// removed.
func (s *Store) DeleteTag(ctx context.Context, tag string) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteTag, tag)
	if err != nil {
		return 0, fmt.Errorf("cache: deleting tag %q: %w", tag, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: counting deleted rows: %w", err)
	}

	s.logger.Debug("cache tag cleared", slog.String("tag", tag), slog.Int64("entries", n))

	return n, nil
}

// Purge removes expired entries and returns how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlPurge, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("cache: purging expired entries: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cache: counting purged rows: %w", err)
	}

	if n > 0 {
		s.logger.Debug("purged expired cache entries", slog.Int64("entries", n))
	}

	return n, nil
}

// Stats counts the entries of tag, or of every tag when tag is empty.
func (s *Store) Stats(ctx context.Context, tag string) (Stats, error) {
	var st Stats

	err := s.db.QueryRowContext(ctx, sqlStats, s.now().UnixMilli(), tag, tag).Scan(&st.Entries, &st.Expired)
	if err != nil {
		return Stats{}, fmt.Errorf("cache: reading stats: %w", err)
	}

	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
