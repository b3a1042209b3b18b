package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateEnv points every path the CLI resolves at a temp dir and returns
// the config file path.
func isolateEnv(t *testing.T) string {
	t.Helper()

	root := t.TempDir()
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))
	t.Setenv("XDG_CACHE_HOME", filepath.Join(root, "cache"))
	t.Setenv("GDRIVE_GO_CONFIG", "")
	t.Setenv("GDRIVE_GO_DISK", "")

	return filepath.Join(root, "config.toml")
}

func runRoot(t *testing.T, cfgPath string, args ...string) error {
	t.Helper()

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", cfgPath, "--quiet"}, args...))
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})

	return cmd.ExecuteContext(context.Background())
}

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{
		"login", "logout", "disk", "config", "status", "ls", "stat", "cat",
		"mkdir", "touch", "rm", "mv", "cp", "rename", "edit", "put",
		"quota", "thumb", "shared-drive", "passwd",
	}

	for _, name := range want {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name     string
		format   string
		terminal bool
		wantJSON bool
	}{
		{"json", "json", true, true},
		{"text", "text", false, false},
		{"auto on terminal", "auto", true, false},
		{"auto when piped", "auto", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer

			newLogger(&buf, slog.LevelInfo, tt.format, tt.terminal).Info("hello", slog.String("k", "v"))

			assert.Equal(t, tt.wantJSON, json.Valid(bytes.TrimSpace(buf.Bytes())), buf.String())
		})
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer

	logger := newLogger(&buf, slog.LevelWarn, "text", true)
	logger.Info("dropped")
	logger.Warn("kept")

	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "kept")
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "custom/1", userAgent("custom/1"))
	assert.Equal(t, "gdrive-go/"+version, userAgent(""))
}

func TestDiskAddAndRemove(t *testing.T) {
	cfgPath := isolateEnv(t)

	require.NoError(t, runRoot(t, cfgPath,
		"disk", "add", "work", "--client-id", "cid", "--client-secret", "csecret", "--root-path", "/Work"))

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[disk.work]")
	assert.Contains(t, string(data), `client_id = "cid"`)
	assert.Contains(t, string(data), `root_path = "/Work"`)

	err = runRoot(t, cfgPath, "disk", "add", "work", "--client-id", "x", "--client-secret", "y")
	assert.ErrorContains(t, err, "already exists")

	require.NoError(t, runRoot(t, cfgPath, "disk", "remove", "work"))

	data, err = os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "[disk.work]")
}

func TestDiskAdd_InvalidTag(t *testing.T) {
	cfgPath := isolateEnv(t)

	err := runRoot(t, cfgPath, "disk", "add", "bad tag", "--client-id", "x", "--client-secret", "y")
	assert.Error(t, err)
}

func TestLogout_ClearsRefreshToken(t *testing.T) {
	cfgPath := isolateEnv(t)

	require.NoError(t, os.WriteFile(cfgPath, []byte(`[disk.work]
client_id = "cid"
client_secret = "csecret"
refresh_token = "rtok"
`), 0o600))

	require.NoError(t, runRoot(t, cfgPath, "logout", "work"))

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[disk.work]")
	assert.NotContains(t, string(data), "rtok")

	require.NoError(t, runRoot(t, cfgPath, "logout", "--purge", "work"))

	data, err = os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "[disk.work]")
}

func TestCommands_NeedDisk(t *testing.T) {
	cfgPath := isolateEnv(t)

	err := runRoot(t, cfgPath, "ls")
	assert.ErrorContains(t, err, "no disk selected")

	err = runRoot(t, cfgPath, "--disk", "ghost", "ls")
	assert.ErrorContains(t, err, "not configured")

	err = runRoot(t, cfgPath, "login")
	assert.ErrorContains(t, err, "needs a disk tag")
}

func TestStatus_WithDisks(t *testing.T) {
	cfgPath := isolateEnv(t)

	require.NoError(t, runRoot(t, cfgPath, "status"))

	require.NoError(t, runRoot(t, cfgPath,
		"disk", "add", "work", "--client-id", "cid", "--client-secret", "csecret"))

	require.NoError(t, runRoot(t, cfgPath, "status"))
	require.NoError(t, runRoot(t, cfgPath, "disk", "list"))
	require.NoError(t, runRoot(t, cfgPath, "config", "show"))
}
