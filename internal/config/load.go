package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Resolved is the effective configuration after the override chain has been
// applied, with durations and sizes already parsed.
type Resolved struct {
	Path    string
	DiskTag string
	Config  *Config

	ConnectTimeout time.Duration
	DataTimeout    time.Duration
	ListTTL        time.Duration
	ChunkSize      int64
	CachePath      string
	SessionDir     string
}

// Disk returns the settings of the active disk, if it is configured.
func (r *Resolved) Disk() (Disk, bool) {
	d, ok := r.Config.Disks[r.DiskTag]

	return d, ok
}

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are treated as fatal errors with "did you
// mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if cfg.Disks == nil {
		cfg.Disks = make(map[string]Disk)
	}

	applyDiskDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// applyDiskDefaults fills per-disk fields that were left out of the file.
func applyDiskDefaults(cfg *Config) {
	for tag, d := range cfg.Disks {
		if d.RootPath == "" {
			d.RootPath = defaultRootPath
			cfg.Disks[tag] = d
		}
	}
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Resolve disk tag: CLI > env > the only configured disk
	tag := cli.Disk
	if tag == "" {
		tag = env.Disk
	}

	if tag == "" {
		tag = soleDisk(cfg)
	}

	return newResolved(cfgPath, tag, cfg)
}

// soleDisk returns the tag of the only configured disk, or "" when there
// are zero or several.
func soleDisk(cfg *Config) string {
	if len(cfg.Disks) != 1 {
		return ""
	}

	for tag := range cfg.Disks {
		return tag
	}

	return ""
}

func newResolved(path, tag string, cfg *Config) (*Resolved, error) {
	r := &Resolved{Path: path, DiskTag: tag, Config: cfg}

	// Validate has already checked these parse; errors here mean a caller
	// built a Config by hand.
	var err error
	if r.ConnectTimeout, err = time.ParseDuration(cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	if r.DataTimeout, err = time.ParseDuration(cfg.DataTimeout); err != nil {
		return nil, fmt.Errorf("data_timeout: %w", err)
	}

	if r.ListTTL, err = time.ParseDuration(cfg.ListTTL); err != nil {
		return nil, fmt.Errorf("list_ttl: %w", err)
	}

	if r.ChunkSize, err = ParseChunkSize(cfg.ChunkSize); err != nil {
		return nil, fmt.Errorf("chunk_size: %w", err)
	}

	r.CachePath = expandTilde(cfg.CachePath)
	if r.CachePath == "" {
		r.CachePath = filepath.Join(DefaultCacheDir(), cacheFileName)
	}

	dataDir := expandTilde(cfg.DataDir)
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}

	r.SessionDir = filepath.Join(dataDir, sessionDirName)

	return r, nil
}

// DiskTags returns the configured disk tags in sorted order.
func (c *Config) DiskTags() []string {
	tags := make([]string, 0, len(c.Disks))
	for tag := range c.Disks {
		tags = append(tags, tag)
	}

	sort.Strings(tags)

	return tags
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
