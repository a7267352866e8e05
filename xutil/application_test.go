package xutil

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xmetric"
	"github.com/qixi7/xjustnet/xnet"
	"github.com/qixi7/xjustnet/xpacket"
)

func httpGet(t *testing.T, app *Application, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + app.HttpAddr() + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

// 起app并在后台跑主循环, 测试结束时退出
func runApp(t *testing.T, app *Application, frame func(int64)) {
	t.Helper()
	require.NoError(t, app.Init(nil))
	stopped := make(chan struct{})
	go func() {
		app.Run(frame)
		close(stopped)
	}()
	t.Cleanup(func() {
		app.Exit()
		<-stopped
		app.Destroy(nil)
	})
}

func TestSplitAddr(t *testing.T) {
	host, port, ok := splitAddr("127.0.0.1:13000")
	assert.True(t, ok)
	assert.Equal(t, "127.0.0.1", host)
	assert.Equal(t, 13000, port)

	_, port, ok = splitAddr(":0")
	assert.True(t, ok)
	assert.Equal(t, 0, port)

	_, _, ok = splitAddr("127.0.0.1")
	assert.False(t, ok)
	_, _, ok = splitAddr("127.0.0.1:x")
	assert.False(t, ok)
}

func TestApplicationHttpCmds(t *testing.T) {
	app := NewApplication().SetFPS(100).SetHttpListen("127.0.0.1:0").SetProfile(t.TempDir(), "")
	app.HandleHttpCmd("/echo/:word", func(args []string) string {
		return strings.Join(args, ",")
	})
	runApp(t, app, func(int64) {})

	code, body := httpGet(t, app, "/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	_, body = httpGet(t, app, "/echo/hi")
	assert.Equal(t, "echo,hi\n", body)

	_, body = httpGet(t, app, "/help")
	assert.Contains(t, body, "/debug/stat")
	assert.Contains(t, body, "/echo/:word")

	_, body = httpGet(t, app, "/debug/stat")
	assert.Contains(t, body, "goroutines")

	_, body = httpGet(t, app, "/pprof/start/mem")
	assert.Equal(t, "mem profile started\n", body)
	_, body = httpGet(t, app, "/pprof/start/gpu")
	assert.Contains(t, body, "gpu profile failed")
	_, body = httpGet(t, app, "/pprof/stop")
	assert.Contains(t, body, "mem.pprof")
}

func TestApplicationBadHttpListen(t *testing.T) {
	app := NewApplication().SetHttpListen("nope")
	err := app.Init(nil)
	assert.True(t, errors.Is(err, ErrHttpListen))
}

func TestApplicationInitFuncFails(t *testing.T) {
	pid := filepath.Join(t.TempDir(), "app.pid")
	app := NewApplication().SetPidFile(pid)
	require.Error(t, app.Init(func() bool { return false }))
	// 失败时pid文件也要释放
	_, err := os.Stat(pid)
	assert.True(t, os.IsNotExist(err))
}

func TestApplicationRunAndExit(t *testing.T) {
	app := NewApplication().SetFPS(1000)
	require.NoError(t, app.Init(nil))
	defer app.Destroy(nil)

	frames := 0
	app.Run(func(dt int64) {
		assert.True(t, dt >= 0)
		frames++
		if frames == 5 {
			app.Exit()
		}
	})
	assert.Equal(t, 5, frames)
	assert.Equal(t, int64(5), app.TickTotal())
}

func TestApplicationEventDriver(t *testing.T) {
	app := NewApplication().SetFPS(1)
	invoked := make(chan struct{}, 1)
	app.SetEvenDriverMode(func() {
		invoked <- struct{}{}
		app.Exit()
	})
	require.NoError(t, app.Init(nil))
	defer app.Destroy(nil)
	assert.True(t, app.IsEvenDriverMode())

	done := make(chan struct{})
	go func() {
		app.Run(func(int64) {})
		close(done)
	}()
	app.InvokeFuncOnMain()
	select {
	case <-invoked:
	case <-time.After(3 * time.Second):
		t.Fatal("invokeFunc not called")
	}
	<-done
}

func TestFlock(t *testing.T) {
	pid := filepath.Join(t.TempDir(), "app.pid")
	f, err := NewFlock(pid)
	require.NoError(t, err)
	b, err := os.ReadFile(pid)
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(os.Getpid())+"\n", string(b))

	_, err = NewFlock(pid)
	assert.True(t, errors.Is(err, ErrLocked))

	f.Close()
	f.Close()
	_, err = os.Stat(pid)
	assert.True(t, os.IsNotExist(err))

	f, err = NewFlock(pid)
	require.NoError(t, err)
	f.Close()
}

func TestServerCmdsAndMetrics(t *testing.T) {
	cfg := xconfig.Default()
	cfg.Port = 0
	cfg.MaxConnections = 2
	cfg.PostEvent = true
	srv := xnet.NewServer(cfg, xnet.ServerHandlerFuncs{})
	require.NoError(t, srv.Start())
	defer func() { _ = srv.Stop(false) }()

	app := NewApplication().SetFPS(100).SetHttpListen("127.0.0.1:0")
	gather := xmetric.NewGather(func() xmetric.MetricJob {
		return xmetric.JobList{app.MetricJob(), xnet.NewServerMetric(srv)}
	})
	gather.Init()
	ServerCmds(app, srv)
	app.Handle("/metrics", gather.Handler())
	runApp(t, app, func(dt int64) {
		srv.ProcessEvent()
		gather.Run(dt)
	})

	c := xnet.NewClient(cfg, xnet.ClientHandlerFuncs{})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	require.NoError(t, c.Connect(ctx, "127.0.0.1", port))
	defer func() { _ = c.Stop(true) }()
	require.NoError(t, c.WaitActive(ctx))
	pk := xpacket.NewWritablePacket()
	pk.WriteInt32(1)
	require.True(t, c.Send(pk))
	require.Eventually(t, func() bool { return srv.ConnectedCount() == 1 }, 3*time.Second, 10*time.Millisecond)

	_, body := httpGet(t, app, "/server")
	assert.Contains(t, body, "connected: 1")
	_, body = httpGet(t, app, "/sessions")
	assert.True(t, strings.HasPrefix(body, "1 127.0.0.1:"))

	_, body = httpGet(t, app, "/metrics")
	assert.Contains(t, body, "xjustnet_frame_total_num")
	assert.Contains(t, body, `xjustnet_server_session_num{alias=`)

	_, body = httpGet(t, app, "/kick/9")
	assert.Equal(t, "client 9 not found\n", body)
	_, body = httpGet(t, app, "/kick/1")
	assert.Equal(t, "client 1 disconnected\n", body)
	assert.Equal(t, 0, srv.ConnectedCount())

	n, err := testutil.GatherAndCount(gather.Registry(), "xjustnet_server_handshake_ok")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
