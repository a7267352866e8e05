package xnet

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xpacket"
)

const waitTimeout = 3 * time.Second

func testConfig(maxConn uint32) *xconfig.Config {
	cfg := xconfig.Default()
	cfg.Port = 0
	cfg.MaxConnections = maxConn
	cfg.HandshakeTimeout = xconfig.Duration{Duration: 2 * time.Second}
	return cfg
}

type recvData struct {
	id uint32
	pk *xpacket.ReadablePacket
}

type serverRecorder struct {
	started      chan struct{}
	stopped      chan struct{}
	connected    chan uint32
	disconnected chan uint32
	data         chan recvData
}

func newServerRecorder() *serverRecorder {
	return &serverRecorder{
		started:      make(chan struct{}, 4),
		stopped:      make(chan struct{}, 4),
		connected:    make(chan uint32, 16),
		disconnected: make(chan uint32, 16),
		data:         make(chan recvData, 64),
	}
}

func (r *serverRecorder) handler() ServerHandler {
	return ServerHandlerFuncs{
		Start:        func(*Server) { r.started <- struct{}{} },
		Stop:         func(*Server) { r.stopped <- struct{}{} },
		Connected:    func(_ *Server, id uint32) { r.connected <- id },
		Disconnected: func(_ *Server, id uint32) { r.disconnected <- id },
		Data:         func(_ *Server, id uint32, pk *xpacket.ReadablePacket) { r.data <- recvData{id, pk} },
	}
}

type clientRecorder struct {
	started      chan struct{}
	stopped      chan struct{}
	connected    chan uint32
	disconnected chan struct{}
	data         chan *xpacket.ReadablePacket
}

func newClientRecorder() *clientRecorder {
	return &clientRecorder{
		started:      make(chan struct{}, 4),
		stopped:      make(chan struct{}, 4),
		connected:    make(chan uint32, 4),
		disconnected: make(chan struct{}, 4),
		data:         make(chan *xpacket.ReadablePacket, 64),
	}
}

func (r *clientRecorder) handler() ClientHandler {
	return ClientHandlerFuncs{
		Start:        func(*Client) { r.started <- struct{}{} },
		Stop:         func(*Client) { r.stopped <- struct{}{} },
		Connected:    func(_ *Client, id uint32) { r.connected <- id },
		Disconnected: func(*Client) { r.disconnected <- struct{}{} },
		Data:         func(_ *Client, pk *xpacket.ReadablePacket) { r.data <- pk },
	}
}

func recvOne[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitTimeout):
		t.Fatalf("timed out waiting for event")
	}
	var zero T
	return zero
}

func requireNoEvent[T any](t *testing.T, ch chan T, d time.Duration) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected event %v", v)
	case <-time.After(d):
	}
}

func startServer(t *testing.T, cfg *xconfig.Config, rec *serverRecorder) *Server {
	t.Helper()
	srv := NewServer(cfg, rec.handler())
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop(false) })
	return srv
}

func serverPort(t *testing.T, srv *Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return port
}

func connectClient(t *testing.T, srv *Server, rec *clientRecorder) *Client {
	t.Helper()
	c := NewClient(srv.Config(), rec.handler())
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	require.NoError(t, c.Connect(ctx, "127.0.0.1", serverPort(t, srv)))
	require.NoError(t, c.WaitActive(ctx))
	t.Cleanup(func() { _ = c.Stop(true) })
	return c
}

// 裸连接, 用来构造异常的对端
func dialRaw(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr(), waitTimeout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeRaw(t *testing.T, conn net.Conn, frame []byte) {
	t.Helper()
	buf := make([]byte, 4+len(frame))
	binary.LittleEndian.PutUint32(buf, uint32(len(frame)))
	copy(buf[4:], frame)
	_, err := conn.Write(buf)
	require.NoError(t, err)
}

func readRaw(conn net.Conn) (*xpacket.ReadablePacket, error) {
	_ = conn.SetReadDeadline(time.Now().Add(waitTimeout))
	var head [4]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return nil, err
	}
	body := make([]byte, binary.LittleEndian.Uint32(head[:]))
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return xpacket.DecodePacket(body, len(body), len(body))
}

// 读到id包并回确认
func rawHandshake(t *testing.T, conn net.Conn) uint32 {
	t.Helper()
	pk, err := readRaw(conn)
	require.NoError(t, err)
	id := requireIDPacket(t, pk)
	writeRaw(t, conn, xpacket.ReceivedIDWellFrame(id))
	return id
}

func requireIDPacket(t *testing.T, pk *xpacket.ReadablePacket) uint32 {
	t.Helper()
	require.Equal(t, xpacket.KindSystem, pk.Kind())
	require.Equal(t, xpacket.ServerID, pk.SourceID())
	info, err := pk.ReadUint8()
	require.NoError(t, err)
	require.Equal(t, xpacket.InfoClientIDSend, info)
	id, err := pk.ReadUint32()
	require.NoError(t, err)
	return id
}

func int32Packet(v int32) *xpacket.WritablePacket {
	pk := xpacket.NewWritablePacket()
	pk.WriteInt32(v)
	return pk
}
