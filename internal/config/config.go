// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gdrive-go. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags) and
// per-disk sections holding each connected Google Drive account.
package config

// Config is the top-level configuration structure parsed from a TOML file.
// Global settings are flat top-level keys; each connected account lives in
// its own [disk.<tag>] section.
type Config struct {
	RedirectURI string `toml:"redirect_uri"`

	LoggingConfig
	NetworkConfig
	CacheConfig

	Disks map[string]Disk `toml:"disk"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior: timeouts, user agent, and
// request pacing. requests_per_second = 0 disables pacing.
type NetworkConfig struct {
	ConnectTimeout    string  `toml:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout"`
	UserAgent         string  `toml:"user_agent"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// CacheConfig controls where cached listings, tokens and upload sessions
// are kept, and how long listings stay fresh.
type CacheConfig struct {
	ListTTL   string `toml:"list_ttl"`
	CachePath string `toml:"cache_path"`
	DataDir   string `toml:"data_dir"`
	ChunkSize string `toml:"chunk_size"`
}

// Disk is one connected Google Drive account. Credentials are written here
// by the authorization flow; ActiveLimit is the unix time (seconds) until
// which requests are held back after the provider throttled us. Secrets are
// excluded from JSON output.
type Disk struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret" json:"-"`
	RefreshToken string `toml:"refresh_token" json:"-"`
	RootPath     string `toml:"root_path"`
	ActiveLimit  int64  `toml:"active_limit"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config flag
	Disk       string // --disk flag
}
