package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig = "GDRIVE_GO_CONFIG"
	EnvDisk   = "GDRIVE_GO_DISK"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // GDRIVE_GO_CONFIG: override config file path
	Disk       string // GDRIVE_GO_DISK: active disk tag
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Disk:       os.Getenv(EnvDisk),
	}
}
