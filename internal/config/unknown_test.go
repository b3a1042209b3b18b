package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_UnknownKey_TopLevel(t *testing.T) {
	path := writeTestConfig(t, `
unknown_section = "value"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown config key")
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestLoad_UnknownKey_Typo(t *testing.T) {
	path := writeTestConfig(t, `list_tll = "1m"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "list_ttl"`)
}

func TestLoad_UnknownKey_InDisk(t *testing.T) {
	path := writeTestConfig(t, `
[disk.work]
client_idd = "x"
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[disk.work]")
	assert.Contains(t, err.Error(), `did you mean "client_id"`)
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"lsit_ttl", "list_ttl", 2},
		{"root_pth", "root_path", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.expected, levenshtein(tt.a, tt.b))
		})
	}
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "refresh_token", closestMatch("refresh_tokn", knownDiskKeysList))
	assert.Equal(t, "log_level", closestMatch("log_levl", knownGlobalKeysList))
	assert.Equal(t, "", closestMatch("completely_unrelated", knownGlobalKeysList))
}
