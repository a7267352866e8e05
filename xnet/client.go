package xnet

/*
	client.go: 连接Server并领取id的客户端
*/

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xpacket"
)

type ClientState int32

const (
	StateDisconnected ClientState = iota
	StateConnecting
	StateAwaitingID
	StateActive
	StateDisconnecting
)

func (st ClientState) String() string {
	switch st {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingID:
		return "awaiting-id"
	case StateActive:
		return "active"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

type Client struct {
	eventPoster
	cfg        *xconfig.Config
	handler    ClientHandler
	headFormat HeadFormater
	mu         sync.Mutex // Connect/Stop
	state      atomic.Int32
	id         atomic.Uint32
	sess       *Session
	activeSig  chan struct{} // 进入Active时close
	doneSig    chan struct{} // 读goroutine退出时close
	userData   interface{}
}

func NewClient(cfg *xconfig.Config, handler ClientHandler) *Client {
	if cfg == nil {
		cfg = xconfig.Default()
	}
	if handler == nil {
		handler = ClientHandlerFuncs{}
	}
	c := &Client{
		cfg:        cfg,
		handler:    handler,
		headFormat: NewHeadFormater(cfg.Header),
	}
	c.id.Store(xpacket.UnassignedID)
	c.eventPoster = newEventPoster(cfg.PostEvent, c.dispatch)
	return c
}

func (c *Client) dispatch(ev netEvent) {
	switch ev.evType {
	case eventStart:
		c.handler.OnStart(c)
	case eventStop:
		c.handler.OnStop(c)
	case eventConnected:
		c.handler.OnConnected(c, ev.id)
	case eventDisconnected:
		c.handler.OnDisconnected(c)
	case eventData:
		c.handler.OnData(c, ev.pk)
	default:
		panic("xnet.Client.dispatch")
	}
}

func (c *Client) State() ClientState {
	return ClientState(c.state.Load())
}

// ID server分配的id, 握手完成前是UnassignedID
func (c *Client) ID() uint32 {
	return c.id.Load()
}

func (c *Client) IsActive() bool {
	return c.State() == StateActive
}

func (c *Client) Config() *xconfig.Config {
	return c.cfg
}

func (c *Client) SetUserData(udata interface{}) {
	c.userData = udata
}

func (c *Client) GetUserData() interface{} {
	return c.userData
}

// Connect 建立连接后立即返回, 握手在后台完成. 用WaitActive等待.
// 回调不在锁里触发, OnStop里可以再次Connect
func (c *Client) Connect(ctx context.Context, host string, port int) error {
	if !c.state.CAS(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrNotDisconnected
	}
	c.id.Store(xpacket.UnassignedID)
	c.post(netEvent{evType: eventStart})

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	sess, err := c.open(ctx, addr)
	if err != nil {
		xlog.Errorf("connect failed: %s %s %v", c.network(), addr, err)
		c.state.Store(int32(StateDisconnected))
		c.post(netEvent{evType: eventStop})
		return err
	}
	sess.AddCloseCallback(c.onSessionClose)

	c.mu.Lock()
	c.sess = sess
	c.activeSig = make(chan struct{})
	c.doneSig = make(chan struct{})
	activeSig, doneSig := c.activeSig, c.doneSig
	c.mu.Unlock()
	if !c.state.CAS(int32(StateConnecting), int32(StateAwaitingID)) {
		// 连接期间被Stop
		close(doneSig)
		return errors.Wrapf(ErrSessionClosed, "connect %s", addr)
	}
	xlog.InfoF("connected to %s://%s, awaiting id", c.network(), addr)
	go c.serve(sess, activeSig, doneSig)
	return nil
}

// 拨号, kcp还要先发一个空帧让server建立会话
func (c *Client) open(ctx context.Context, addr string) (*Session, error) {
	conn, err := dial(ctx, c.cfg.Network, addr)
	if err != nil {
		return nil, errors.Wrapf(err, "connect %s", addr)
	}
	tuneConn(conn)
	sess := newSession(conn, c.headFormat, c.cfg.ReadBufferSize, c.cfg.QueueBufLen, c.cfg.IOTimeout.Duration)
	if needsOpener(c.cfg.Network) {
		if err := sess.SyncSend(nil); err != nil {
			_ = sess.Close()
			return nil, errors.Wrapf(err, "open %s", addr)
		}
	}
	return sess, nil
}

func (c *Client) network() string {
	if c.cfg.Network == "" {
		return xconfig.NetworkTCP
	}
	return c.cfg.Network
}

// WaitActive 阻塞到握手完成, 连接断开或ctx结束
func (c *Client) WaitActive(ctx context.Context) error {
	c.mu.Lock()
	activeSig, doneSig := c.activeSig, c.doneSig
	c.mu.Unlock()
	if activeSig == nil {
		return ErrNotRunning
	}
	select {
	case <-activeSig:
		return nil
	case <-doneSig:
		select {
		case <-activeSig:
			return nil
		default:
		}
		return ErrHandshakeFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) serve(sess *Session, activeSig, doneSig chan struct{}) {
	defer close(doneSig)
	if t := c.cfg.HandshakeTimeout.Duration; t > 0 {
		sess.stream.setDeadline(time.Now().Add(t))
	}
	id, err := c.awaitID(sess)
	if err != nil {
		errNetLog(err, fmt.Sprintf("await id from %s failed: %v", sess.RemoteAddr(), err))
		_ = sess.Close()
		return
	}
	sess.setID(id)
	if err := sess.SyncSend(xpacket.ReceivedIDWellFrame(id)); err != nil {
		errNetLog(err, fmt.Sprintf("ack id %d err=%v", id, err))
		return
	}
	sess.stream.setDeadline(time.Time{})
	c.id.Store(id)
	if !c.state.CAS(int32(StateAwaitingID), int32(StateActive)) {
		_ = sess.Close()
		return
	}
	close(activeSig)
	xlog.InfoF("client got id %d", id)
	c.post(netEvent{evType: eventConnected, id: id})
	c.serveActive(sess)
}

// 等待id包, 其他包忽略后继续读
func (c *Client) awaitID(sess *Session) (uint32, error) {
	badFrames := 0
	for {
		pk, err := sess.Recv()
		if err != nil {
			if isFrameError(err) {
				badFrames++
				if c.cfg.MaxFrameErrors > 0 && badFrames > c.cfg.MaxFrameErrors {
					return 0, err
				}
				continue
			}
			return 0, err
		}
		badFrames = 0
		if pk.Kind() != xpacket.KindSystem || pk.SourceID() != xpacket.ServerID {
			continue
		}
		info, err := pk.ReadUint8()
		if err != nil || info != xpacket.InfoClientIDSend {
			continue
		}
		id, err := pk.ReadUint32()
		if err != nil {
			continue
		}
		return id, nil
	}
}

func (c *Client) serveActive(sess *Session) {
	badFrames := 0
	for {
		pk, err := sess.Recv()
		if err != nil {
			if isFrameError(err) {
				badFrames++
				xlog.Warnf("client %d drop frame: %v", sess.ID(), err)
				if c.cfg.MaxFrameErrors > 0 && badFrames > c.cfg.MaxFrameErrors {
					break
				}
				continue
			}
			errNetLog(err, fmt.Sprintf("client[%d] closed, server addr: %s, err:%v", sess.ID(), sess.RemoteAddr(), err))
			break
		}
		badFrames = 0
		if pk.SourceID() != xpacket.ServerID {
			continue
		}
		switch pk.Kind() {
		case xpacket.KindSystem:
			info, err := pk.ReadUint8()
			if err == nil && info == xpacket.InfoServerHasStopped {
				xlog.InfoF("server %s has stopped", sess.RemoteAddr())
				_ = c.Stop(true)
				return
			}
		case xpacket.KindCustom:
			c.post(netEvent{evType: eventData, pk: pk})
		}
	}
	_ = sess.Close()
}

// 所有断开路径最终都走到这里
func (c *Client) onSessionClose(sess *Session) {
	prev := ClientState(c.state.Swap(int32(StateDisconnecting)))
	if prev == StateActive {
		c.post(netEvent{evType: eventDisconnected, id: sess.ID()})
	}
	c.id.Store(xpacket.UnassignedID)
	c.state.Store(int32(StateDisconnected))
	c.post(netEvent{evType: eventStop})
}

// Send 未Active时什么都不做, 返回false
func (c *Client) Send(pk *xpacket.WritablePacket) bool {
	if c.State() != StateActive {
		return false
	}
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return false
	}
	frame := pk.Frame(c.ID())
	if len(frame) > c.cfg.ReadBufferSize {
		xlog.Warnf("client %d drop oversized packet: %d > %d", c.ID(), len(frame), c.cfg.ReadBufferSize)
		return false
	}
	return sess.AsyncSend(frame) == nil
}

// Stop forced为false时先发断开请求
func (c *Client) Stop(forced bool) error {
	c.mu.Lock()
	sess := c.sess
	st := c.State()
	c.mu.Unlock()
	if sess == nil || st == StateDisconnected {
		return ErrNotRunning
	}
	if !forced && st == StateActive {
		err := sess.CloseGraceful(xpacket.DisconnectRequestFrame(c.ID()), c.flushWait())
		if errors.Is(err, ErrSessionClosed) {
			return nil
		}
		return err
	}
	return sess.Close()
}

func (c *Client) flushWait() time.Duration {
	if c.cfg.IOTimeout.Duration > 0 {
		return c.cfg.IOTimeout.Duration
	}
	return defaultFlushWait
}
