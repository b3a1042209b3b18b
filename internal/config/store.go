package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

// ErrUnknownDisk is returned when a disk tag has no [disk.<tag>] section.
var ErrUnknownDisk = errors.New("config: unknown disk")

// Store provides thread-safe access to the loaded configuration and writes
// disk values back to the config file. It implements gdrive.ConfigStore.
type Store struct {
	mu     sync.RWMutex
	cfg    *Config
	path   string // immutable after construction
	logger *slog.Logger
}

// NewStore creates a Store over an already loaded config.
func NewStore(path string, cfg *Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{cfg: cfg, path: path, logger: logger}
}

// OpenStore loads the config file at path (defaults when it does not exist)
// and wraps it in a Store.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	cfg, err := LoadOrDefault(path)
	if err != nil {
		return nil, err
	}

	return NewStore(path, cfg, logger), nil
}

// Config returns the current config snapshot. Callers must not modify it.
func (s *Store) Config() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.cfg
}

// Path returns the config file path.
func (s *Store) Path() string {
	return s.path
}

// Disk returns the settings of one disk.
func (s *Store) Disk(tag string) (Disk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.cfg.Disks[tag]

	return d, ok
}

// LoadDisk returns the settings of one disk in the form the Drive adapter
// consumes.
func (s *Store) LoadDisk(tag string) (gdrive.DiskConfig, error) {
	d, ok := s.Disk(tag)
	if !ok {
		return gdrive.DiskConfig{}, fmt.Errorf("disk %q: %w", tag, ErrUnknownDisk)
	}

	dc := gdrive.DiskConfig{
		ClientID:     d.ClientID,
		ClientSecret: d.ClientSecret,
		RefreshToken: d.RefreshToken,
		RootPath:     d.RootPath,
	}

	if d.ActiveLimit > 0 {
		dc.ActiveLimit = time.Unix(d.ActiveLimit, 0)
	}

	return dc, nil
}

// SaveDiskValues writes values into the [disk.<tag>] section, creating the
// config file and section when they do not exist yet.
func (s *Store) SaveDiskValues(tag string, values map[string]string) error {
	if err := ValidateDiskTag(tag); err != nil {
		return err
	}

	keys := make([]string, 0, len(values))

	for _, key := range knownDiskKeysList {
		if _, ok := values[key]; ok {
			keys = append(keys, key)
		}
	}

	if len(keys) != len(values) {
		for key := range values {
			if !knownDiskKeys[key] {
				return unknownDiskKeyError(key, tag)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.cfg.Disks[tag]
	if !ok {
		d = Disk{RootPath: defaultRootPath}
	}

	if err := applyDiskValue(&d, values); err != nil {
		return fmt.Errorf("disk %s: %w", tag, err)
	}

	if err := editDiskSection(s.path, tag, keys, values); err != nil {
		return err
	}

	s.replaceDisk(tag, &d)

	s.logger.Info("saved disk settings",
		slog.String("path", s.path),
		slog.String("disk", tag),
		slog.Any("keys", keys),
	)

	return nil
}

// RemoveDisk deletes the [disk.<tag>] section.
func (s *Store) RemoveDisk(tag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cfg.Disks[tag]; !ok {
		return fmt.Errorf("disk %q: %w", tag, ErrUnknownDisk)
	}

	if err := deleteDiskSection(s.path, tag); err != nil {
		return err
	}

	s.replaceDisk(tag, nil)

	s.logger.Info("removed disk", slog.String("path", s.path), slog.String("disk", tag))

	return nil
}

// replaceDisk swaps in a copy of the config with one disk changed, so
// snapshots handed out by Config stay immutable. A nil d removes the disk.
// Caller holds mu.
func (s *Store) replaceDisk(tag string, d *Disk) {
	next := *s.cfg
	next.Disks = maps.Clone(s.cfg.Disks)

	if next.Disks == nil {
		next.Disks = make(map[string]Disk)
	}

	if d == nil {
		delete(next.Disks, tag)
	} else {
		next.Disks[tag] = *d
	}

	s.cfg = &next
}

// applyDiskValue sets the typed fields of d from string values.
func applyDiskValue(d *Disk, values map[string]string) error {
	for key, v := range values {
		switch key {
		case gdrive.ConfigKeyClientID:
			d.ClientID = v
		case gdrive.ConfigKeyClientSecret:
			d.ClientSecret = v
		case gdrive.ConfigKeyRefreshToken:
			d.RefreshToken = v
		case gdrive.ConfigKeyActiveLimit:
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fmt.Errorf("active_limit: %w", err)
			}

			d.ActiveLimit = n
		case "root_path":
			d.RootPath = v
		}
	}

	return nil
}

// Reload re-reads the config file. On error the previous config is kept.
func (s *Store) Reload() (*Config, error) {
	cfg, err := LoadOrDefault(s.path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	return cfg, nil
}

// Watch reloads the config whenever the file changes on disk (for example a
// concurrent login writing a new refresh token) and calls onReload with the
// new snapshot. It blocks until ctx is canceled.
func (s *Store) Watch(ctx context.Context, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: atomic writes replace the file, which would drop
	// a watch held on the file itself.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}

			cfg, err := s.Reload()
			if err != nil {
				s.logger.Warn("config reload failed, keeping previous config",
					slog.String("path", s.path), slog.String("error", err.Error()))

				continue
			}

			s.logger.Debug("config reloaded", slog.String("path", s.path))

			if onReload != nil {
				onReload(cfg)
			}

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}
