package gdrive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCharsetDetector(t *testing.T) {
	d := CharsetDetector{}

	assert.Equal(t, "", d.Detect(nil))
	assert.Equal(t, "utf-8", d.Detect([]byte("plain ascii")))
	assert.Equal(t, "utf-8", d.Detect([]byte("café")))
	assert.Equal(t, "windows-1252", d.Detect([]byte{'c', 'a', 'f', 0xe9}))
	assert.Equal(t, "", d.Detect([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0x00, 0xff}))
}

func TestToUTF8(t *testing.T) {
	out, err := toUTF8("windows-1252", []byte{'c', 'a', 'f', 0xe9})
	require.NoError(t, err)
	assert.Equal(t, "café", string(out))

	raw := []byte{0x00, 0x01}
	out, err = toUTF8("", raw)
	require.NoError(t, err)
	assert.Equal(t, raw, out)

	_, err = toUTF8("no-such-charset", raw)
	assert.Error(t, err)
}
