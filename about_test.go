package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordArg(t *testing.T) {
	pass, err := passwordArg([]string{"from-args"}, strings.NewReader("ignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-args", pass)

	pass, err = passwordArg(nil, strings.NewReader("s3cret\r\nsecond line\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pass)

	pass, err = passwordArg(nil, strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", pass)

	_, err = passwordArg(nil, strings.NewReader("\n"))
	assert.Error(t, err)
}
