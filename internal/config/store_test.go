package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/gdrive-go/internal/gdrive"
)

var _ gdrive.ConfigStore = (*Store)(nil)

func TestStore_LoadDisk(t *testing.T) {
	path := writeTestConfig(t, `
[disk.work]
client_id = "cid"
client_secret = "sec"
refresh_token = "rt"
root_path = "/Team"
active_limit = 1700000000

[disk.idle]
client_id = "x"
`)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	dc, err := s.LoadDisk("work")
	require.NoError(t, err)
	assert.Equal(t, "cid", dc.ClientID)
	assert.Equal(t, "sec", dc.ClientSecret)
	assert.Equal(t, "rt", dc.RefreshToken)
	assert.Equal(t, "/Team", dc.RootPath)
	assert.True(t, dc.ActiveLimit.Equal(time.Unix(1_700_000_000, 0)))

	dc, err = s.LoadDisk("idle")
	require.NoError(t, err)
	assert.True(t, dc.ActiveLimit.IsZero())

	_, err = s.LoadDisk("absent")
	assert.ErrorIs(t, err, ErrUnknownDisk)
}

func TestStore_SaveDiskValues_NewDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	before := s.Config()

	err = s.SaveDiskValues("work", map[string]string{
		gdrive.ConfigKeyClientID:     "cid",
		gdrive.ConfigKeyClientSecret: "sec",
		gdrive.ConfigKeyRefreshToken: "rt",
	})
	require.NoError(t, err)

	d, ok := s.Disk("work")
	require.True(t, ok)
	assert.Equal(t, Disk{ClientID: "cid", ClientSecret: "sec", RefreshToken: "rt", RootPath: "/"}, d)
	assert.Empty(t, before.Disks, "earlier snapshots are not mutated")

	// The file round-trips through a fresh load.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, d, cfg.Disks["work"])
}

func TestStore_SaveDiskValues_ActiveLimit(t *testing.T) {
	path := writeTestConfig(t, "[disk.work]\nclient_id = \"cid\"\n")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.SaveDiskValues("work", map[string]string{gdrive.ConfigKeyActiveLimit: "1800000000"}))

	dc, err := s.LoadDisk("work")
	require.NoError(t, err)
	assert.Equal(t, "cid", dc.ClientID)
	assert.Equal(t, int64(1_800_000_000), dc.ActiveLimit.Unix())

	err = s.SaveDiskValues("work", map[string]string{gdrive.ConfigKeyActiveLimit: "soon"})
	assert.Error(t, err)
}

func TestStore_SaveDiskValues_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	err = s.SaveDiskValues("work", map[string]string{"client_idd": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")

	assert.Error(t, s.SaveDiskValues("bad tag", map[string]string{gdrive.ConfigKeyClientID: "x"}))

	_, statErr := os.Stat(path)
	assert.ErrorIs(t, statErr, os.ErrNotExist, "rejected writes leave no file behind")
}

func TestStore_RemoveDisk(t *testing.T) {
	path := writeTestConfig(t, "[disk.work]\nclient_id = \"a\"\n\n[disk.home]\nclient_id = \"b\"\n")

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, s.RemoveDisk("work"))
	assert.Equal(t, []string{"home"}, s.Config().DiskTags())
	assert.ErrorIs(t, s.RemoveDisk("work"), ErrUnknownDisk)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, cfg.DiskTags())
}

func TestStore_Reload(t *testing.T) {
	path := writeTestConfig(t, `log_level = "info"`)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`log_level = "debug"`), 0o600))

	cfg, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "debug", s.Config().LogLevel)

	require.NoError(t, os.WriteFile(path, []byte(`log_level = "shout"`), 0o600))

	_, err = s.Reload()
	require.Error(t, err)
	assert.Equal(t, "debug", s.Config().LogLevel, "failed reload keeps the previous config")
}

func TestStore_WatchReloadsOnWrite(t *testing.T) {
	path := writeTestConfig(t, `log_level = "info"`)

	s, err := OpenStore(path, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan *Config, 8)
	done := make(chan error, 1)

	go func() {
		done <- s.Watch(ctx, func(cfg *Config) { reloaded <- cfg })
	}()

	// Give the watcher time to register before writing.
	require.Eventually(t, func() bool {
		assert.NoError(t, os.WriteFile(path, []byte(`log_level = "warn"`), 0o600))

		select {
		case cfg := <-reloaded:
			return cfg.LogLevel == "warn"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, "warn", s.Config().LogLevel)

	cancel()
	require.NoError(t, <-done)
}
