package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultRedirectURI    = "http://localhost:53682/"
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultListTTL        = "5m"
	defaultChunkSize      = "8MiB"
	defaultRootPath       = "/"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		RedirectURI:   defaultRedirectURI,
		LoggingConfig: defaultLoggingConfig(),
		NetworkConfig: defaultNetworkConfig(),
		CacheConfig:   defaultCacheConfig(),
		Disks:         make(map[string]Disk),
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: defaultConnectTimeout,
		DataTimeout:    defaultDataTimeout,
	}
}

func defaultCacheConfig() CacheConfig {
	return CacheConfig{
		ListTTL:   defaultListTTL,
		ChunkSize: defaultChunkSize,
	}
}
