package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Validation range constants.
const (
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	minListTTL        = 0
)

// diskTagPattern restricts disk tags to bare TOML keys so section headers
// never need quoting.
var diskTagPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"auto": true, "text": true, "json": true}
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateRedirectURI(cfg.RedirectURI)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateCache(&cfg.CacheConfig)...)

	for _, tag := range cfg.DiskTags() {
		errs = append(errs, validateDisk(tag, cfg.Disks[tag])...)
	}

	return errors.Join(errs...)
}

// ValidateDiskTag reports whether tag can name a [disk.<tag>] section.
func ValidateDiskTag(tag string) error {
	if !diskTagPattern.MatchString(tag) {
		return fmt.Errorf("disk tag %q: only letters, digits, '_' and '-' are allowed", tag)
	}

	return nil
}

func validateRedirectURI(raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("redirect_uri: %w", err)}
	}

	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return []error{fmt.Errorf("redirect_uri: must be an absolute http(s) URL, got %q", raw)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDuration("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests_per_second: must be >= 0, got %v", n.RequestsPerSecond))
	}

	return errs
}

func validateCache(c *CacheConfig) []error {
	var errs []error

	errs = append(errs, validateDuration("list_ttl", c.ListTTL, minListTTL)...)
	errs = append(errs, validateChunkSize(c.ChunkSize)...)

	return errs
}

func validateChunkSize(s string) []error {
	if _, err := ParseChunkSize(s); err != nil {
		return []error{fmt.Errorf("chunk_size: %w", err)}
	}

	return nil
}

func validateDuration(field, value string, floor time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < floor {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", field, floor, d)}
	}

	return nil
}

func validateDisk(tag string, d Disk) []error {
	var errs []error

	if err := ValidateDiskTag(tag); err != nil {
		errs = append(errs, err)
	}

	if !strings.HasPrefix(d.RootPath, "/") {
		errs = append(errs, fmt.Errorf("disk %s: root_path must start with /, got %q", tag, d.RootPath))
	}

	if d.ActiveLimit < 0 {
		errs = append(errs, fmt.Errorf("disk %s: active_limit must be >= 0", tag))
	}

	return errs
}
