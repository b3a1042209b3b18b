package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "loud"
	cfg.LogFormat = "xml"
	cfg.ConnectTimeout = "10ms"
	cfg.DataTimeout = "soon"
	cfg.RequestsPerSecond = -1
	cfg.RedirectURI = "localhost"

	err := Validate(cfg)
	require.Error(t, err)

	for _, field := range []string{
		"log_level", "log_format", "connect_timeout", "data_timeout",
		"requests_per_second", "redirect_uri",
	} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestValidateChunkSize(t *testing.T) {
	tests := []struct {
		value   string
		wantErr string
	}{
		{"256KiB", ""},
		{"8MiB", ""},
		{"0", "between 256 KiB and 1.0 GiB"},
		{"2GiB", "between"},
		{"1MB", "not a multiple of 256 KiB"},
		{"lots", "invalid size"},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			errs := validateChunkSize(tt.value)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
				return
			}

			require.Len(t, errs, 1)
			assert.Contains(t, errs[0].Error(), tt.wantErr)
		})
	}
}

func TestValidateDisk(t *testing.T) {
	assert.Empty(t, validateDisk("work", Disk{RootPath: "/"}))
	assert.NotEmpty(t, validateDisk("work", Disk{RootPath: "Shared"}))
	assert.NotEmpty(t, validateDisk("work", Disk{RootPath: "/", ActiveLimit: -5}))
	assert.NotEmpty(t, validateDisk("my disk", Disk{RootPath: "/"}))
}

func TestValidateDiskTag(t *testing.T) {
	assert.NoError(t, ValidateDiskTag("work-2_b"))
	assert.Error(t, ValidateDiskTag(""))
	assert.Error(t, ValidateDiskTag("a.b"))
	assert.Error(t, ValidateDiskTag(`q"uote`))
}
