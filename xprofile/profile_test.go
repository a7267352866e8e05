package xprofile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfilerStartStop(t *testing.T) {
	dir := t.TempDir()
	p := New(dir)
	require.NoError(t, p.Start("mem,mutex"))
	assert.True(t, p.IsRunning())
	assert.True(t, errors.Is(p.Start("block"), ErrRunning))

	files, err := p.Stop()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "mem.pprof"), filepath.Join(dir, "mutex.pprof")}, files)
	for _, f := range files {
		st, err := os.Stat(f)
		require.NoError(t, err)
		assert.True(t, st.Size() > 0)
	}
	assert.False(t, p.IsRunning())

	files, err = p.Stop()
	assert.NoError(t, err)
	assert.Nil(t, files)
}

func TestProfilerUnknownMode(t *testing.T) {
	p := New(t.TempDir())
	assert.True(t, errors.Is(p.Start("cpu,gpu"), ErrUnknownMode))
	assert.True(t, errors.Is(p.Start(""), ErrUnknownMode))
	assert.False(t, p.IsRunning())
}
