package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Disks["work"] = Disk{
		ClientID:     "cid",
		ClientSecret: "very-secret",
		RefreshToken: "refresh-me",
		RootPath:     "/Shared",
		ActiveLimit:  1_700_000_000,
	}
	cfg.Disks["home"] = Disk{RootPath: "/"}

	resolved, err := newResolved("/etc/gdrive-go.toml", "work", cfg)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(resolved, &buf))

	output := buf.String()
	assert.Contains(t, output, "/etc/gdrive-go.toml")
	assert.Contains(t, output, `list_ttl            = "5m0s"`)
	assert.Contains(t, output, "[disk.work]  # active")
	assert.Contains(t, output, "[disk.home]\n")
	assert.Contains(t, output, `root_path     = "/Shared"`)
	assert.Contains(t, output, "client_secret = (set)")
	assert.Contains(t, output, "refresh_token = (unset)")
	assert.Contains(t, output, "2023-11-14T22:13:20Z")
	assert.NotContains(t, output, "very-secret")
	assert.NotContains(t, output, "refresh-me")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("[disk.home]")), bytes.Index(buf.Bytes(), []byte("[disk.work]")))
}

type failWriter struct{}

func (failWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestRenderEffective_WriteError(t *testing.T) {
	resolved, err := newResolved("x.toml", "", DefaultConfig())
	require.NoError(t, err)

	assert.EqualError(t, RenderEffective(resolved, failWriter{}), "disk full")
}
