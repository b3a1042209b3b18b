// Package uploadsession persists resumable upload sessions as small JSON
// files so an interrupted upload can continue from the last committed byte
// in a later process.
package uploadsession

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// ErrCorruptSession is returned when a session file cannot be parsed as JSON.
// The corrupt file is deleted automatically.
var ErrCorruptSession = errors.New("corrupt session file")

// sessionFilePerms restricts session files to owner-only because they contain
// pre-authenticated upload URLs.
const sessionFilePerms = 0o600

const sessionDirPerms = 0o700

// StaleSessionAge is the default TTL for upload session files. Drive
// resumable session URIs expire after one week.
const StaleSessionAge = 7 * 24 * time.Hour

// cleanThrottle prevents excessive directory scans. CleanStale is
// a no-op if called again within this interval.
const cleanThrottle = 1 * time.Hour

// record is the on-disk JSON format for a persisted upload session.
type record struct {
	Tag string `json:"tag"`
	gdrive.UploadSession
}

// Store manages file-based upload session persistence. Session files are
// JSON files keyed by sha256(len(tag):tag:path), stored in one directory.
// Safe for concurrent Save/Load/Delete. It implements gdrive.SessionStore.
type Store struct {
	dir    string
	logger *slog.Logger

	cleanMu   sync.Mutex
	lastClean time.Time
}

// New creates a Store rooted at dir.
func New(dir string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{dir: dir, logger: logger}
}

// Load reads the session for the given disk tag and remote path.
// Returns nil, nil if no session file exists.
func (s *Store) Load(tag, remotePath string) (*gdrive.UploadSession, error) {
	path := s.filePath(tag, remotePath)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading session file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt session file, deleting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("failed to remove corrupt session file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}

		return nil, fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}

	return &rec.UploadSession, nil
}

// Save persists a session. Creates the session directory if needed and
// triggers lazy stale-session cleanup (throttled to once per hour).
func (s *Store) Save(tag, remotePath string, session *gdrive.UploadSession) error {
	if err := os.MkdirAll(s.dir, sessionDirPerms); err != nil {
		return fmt.Errorf("creating session dir: %w", err)
	}

	rec := record{Tag: tag, UploadSession: *session}
	rec.Path = remotePath

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling session record: %w", err)
	}

	path := s.filePath(tag, remotePath)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, sessionFilePerms); err != nil {
		return fmt.Errorf("writing session temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming session temp file: %w", err)
	}

	s.cleanMu.Lock()
	due := time.Since(s.lastClean) >= cleanThrottle
	s.cleanMu.Unlock()

	if due {
		go s.cleanIfDue()
	}

	return nil
}

// Delete removes the session file. No error if the file doesn't exist.
func (s *Store) Delete(tag, remotePath string) error {
	path := s.filePath(tag, remotePath)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting session file: %w", err)
	}

	return nil
}

// List returns every stored session of tag. Unreadable files are skipped.
func (s *Store) List(tag string) ([]gdrive.UploadSession, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("reading session dir: %w", err)
	}

	var out []gdrive.UploadSession

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}

		var rec record
		if json.Unmarshal(data, &rec) != nil || rec.Tag != tag {
			continue
		}

		out = append(out, rec.UploadSession)
	}

	return out, nil
}

// CleanStale removes session files older than maxAge. Returns the number
// of files deleted. Safe to call concurrently.
func (s *Store) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("reading session dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to clean stale session",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		s.logger.Info("deleted stale upload session",
			slog.String("file", e.Name()),
			slog.Duration("age", time.Since(info.ModTime())),
		)

		deleted++
	}

	return deleted, nil
}

// cleanIfDue runs CleanStale if at least cleanThrottle has elapsed since
// the last run. Runs in a goroutine, so a panic is recovered and logged.
func (s *Store) cleanIfDue() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in session cleanup", slog.Any("panic", r))
		}
	}()

	s.cleanMu.Lock()
	if time.Since(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = time.Now()
	s.cleanMu.Unlock()

	n, err := s.CleanStale(StaleSessionAge)
	if err != nil {
		s.logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int("count", n))
	}
}

// sessionKey produces a deterministic filename for a (tag, path) pair. The
// length prefix keeps tag="a:", path="b" apart from tag="a", path=":b".
func sessionKey(tag, remotePath string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%d:%s:%s", len(tag), tag, remotePath))
	return fmt.Sprintf("%x.json", h)
}

func (s *Store) filePath(tag, remotePath string) string {
	return filepath.Join(s.dir, sessionKey(tag, remotePath))
}
