package xnet

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerRoleLocked(t *testing.T) {
	cfg := testConfig(1)
	r := NewRunner(cfg)
	assert.Equal(t, RoleNone, r.Role())
	assert.True(t, errors.Is(r.Stop(true), ErrNotRunning))

	srec := newServerRecorder()
	srv, err := r.RunAsServer(srec.handler())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Stop(false) })
	assert.Equal(t, RoleServer, r.Role())
	assert.True(t, r.IsRunning())

	_, err = r.RunAsClient(context.Background(), "127.0.0.1", nil)
	assert.True(t, errors.Is(err, ErrRoleLocked))
	_, err = r.RunAsServer(nil)
	assert.True(t, errors.Is(err, ErrNotStopped))
	assert.True(t, errors.Is(r.SetConfig(testConfig(2)), ErrNotStopped))

	require.NoError(t, r.Stop(true))
	recvOne(t, srec.stopped)
	assert.False(t, r.IsRunning())
	require.NoError(t, r.SetConfig(testConfig(2)))
	assert.Equal(t, uint32(2), r.Config().MaxConnections)

	srv2, err := r.RunAsServer(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv2.Stop(false) })
	assert.Equal(t, uint32(2), srv2.Config().MaxConnections)
}

func TestRunnerAsClient(t *testing.T) {
	srec := newServerRecorder()
	srv := startServer(t, testConfig(1), srec)

	cfg := testConfig(1)
	cfg.Port = serverPort(t, srv)
	r := NewRunner(cfg)
	crec := newClientRecorder()
	c, err := r.RunAsClient(context.Background(), "127.0.0.1", crec.handler())
	require.NoError(t, err)
	assert.Equal(t, uint32(1), recvOne(t, crec.connected))
	assert.Equal(t, uint32(1), c.ID())

	_, err = r.RunAsServer(nil)
	assert.True(t, errors.Is(err, ErrRoleLocked))

	require.NoError(t, r.Stop(true))
	recvOne(t, crec.stopped)
	assert.Equal(t, uint32(1), recvOne(t, srec.disconnected))
}
