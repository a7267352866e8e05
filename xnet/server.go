package xnet

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xpacket"
)

const defaultFlushWait = time.Second

type ServerState int32

const (
	StateStopped ServerState = iota
	StateListening
	StateRunning // 至少完成过一次握手
	StateStopping
)

func (st ServerState) String() string {
	switch st {
	case StateStopped:
		return "stopped"
	case StateListening:
		return "listening"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

type serverStat struct {
	handshakeOK   atomic.Uint64
	handshakeFail atomic.Uint64
	framesIn      atomic.Uint64
	framesOut     atomic.Uint64
	badFrames     atomic.Uint64
	dropped       atomic.Uint64
}

// Server 给每个连接分配id的服务器
type Server struct {
	*SessionMgr
	eventPoster
	cfg        *xconfig.Config
	handler    ServerHandler
	headFormat HeadFormater
	lifeMu     sync.Mutex // Start/Stop
	state      atomic.Int32
	listener   net.Listener
	addr       atomic.String // 监听地址, Addr不拿锁
	closeSig   chan struct{}
	acceptDone chan struct{}
	wg         sync.WaitGroup // 连接goroutine
	userData   interface{}
	stat       serverStat
}

// NewServer cfg为nil时用默认配置
func NewServer(cfg *xconfig.Config, handler ServerHandler) *Server {
	if cfg == nil {
		cfg = xconfig.Default()
	}
	if handler == nil {
		handler = ServerHandlerFuncs{}
	}
	s := &Server{
		SessionMgr: newSessionMgr(cfg.MaxConnections),
		cfg:        cfg,
		handler:    handler,
		headFormat: NewHeadFormater(cfg.Header),
	}
	s.eventPoster = newEventPoster(cfg.PostEvent, s.dispatch)
	return s
}

func (s *Server) dispatch(ev netEvent) {
	switch ev.evType {
	case eventStart:
		s.handler.OnStart(s)
	case eventStop:
		s.handler.OnStop(s)
	case eventConnected:
		s.handler.OnConnected(s, ev.id)
	case eventDisconnected:
		s.handler.OnDisconnected(s, ev.id)
	case eventData:
		s.handler.OnData(s, ev.id, ev.pk)
	default:
		panic("xnet.Server.dispatch")
	}
}

func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) Config() *xconfig.Config {
	return s.cfg
}

// Addr 实际监听地址, 未启动时为空. handler里也可以调用
func (s *Server) Addr() string {
	if s.State() == StateStopped {
		return ""
	}
	return s.addr.Load()
}

func (s *Server) SetUserData(udata interface{}) {
	s.userData = udata
}

func (s *Server) GetUserData() interface{} {
	return s.userData
}

// Start 监听并开始accept
func (s *Server) Start() error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.State() != StateStopped {
		return ErrNotStopped
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	l, err := listen(s.cfg.Network, addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", addr)
	}
	xlog.InfoF("listen at %s://%s", s.network(), l.Addr().String())

	s.listener = l
	s.addr.Store(l.Addr().String())
	s.reset()
	s.closeSig = make(chan struct{})
	s.acceptDone = make(chan struct{})
	s.state.Store(int32(StateListening))
	s.post(netEvent{evType: eventStart})

	go s.serve(l, s.closeSig, s.acceptDone)
	return nil
}

func (s *Server) network() string {
	if s.cfg.Network == "" {
		return xconfig.NetworkTCP
	}
	return s.cfg.Network
}

// id用完时暂停accept, 等释放或关闭
func (s *Server) waitFreeID(closeSig <-chan struct{}) bool {
	for !s.hasFreeID() {
		xlog.Debugf("no free id, accept paused")
		select {
		case <-s.freeSig:
		case <-closeSig:
			return false
		}
	}
	return true
}

// 开启服务. accept之后才取id, 这样总能拿到当时最小的空闲id
func (s *Server) serve(l net.Listener, closeSig chan struct{}, done chan struct{}) {
	defer close(done)
	var tempDelay time.Duration
	for {
		if !s.waitFreeID(closeSig) {
			return
		}
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-closeSig:
				return
			default:
			}
			xlog.Errorf("accept error on: %s, error: %v", l.Addr().String(), err)
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if maxDelay := 1 * time.Second; tempDelay > maxDelay {
					tempDelay = maxDelay
				}
				time.Sleep(tempDelay)
				continue
			}
			return
		}
		tempDelay = 0
		tuneConn(conn)
		sess := newSession(conn, s.headFormat, s.cfg.ReadBufferSize, s.cfg.QueueBufLen, s.cfg.IOTimeout.Duration)
		sess.AddCloseCallback(s.onSessionClose)
		id, err := s.admit(sess)
		if err != nil {
			xlog.Warnf("reject %s: %v", conn.RemoteAddr(), err)
			_ = sess.Close()
			continue
		}
		s.wg.Add(1)
		go s.handshake(sess, id)
	}
}

func (s *Server) onSessionClose(sess *Session) {
	s.remove(sess)
}

// 握手: 下发id, 等待同一个id的确认
func (s *Server) handshake(sess *Session, id uint32) {
	defer s.wg.Done()
	if t := s.cfg.HandshakeTimeout.Duration; t > 0 {
		sess.stream.setDeadline(time.Now().Add(t))
	}
	if err := s.exchangeID(sess, id); err != nil {
		s.stat.handshakeFail.Inc()
		errNetLog(err, fmt.Sprintf("handshake with %s as %d failed: %v", sess.RemoteAddr(), id, err))
		_ = sess.Close()
		return
	}
	sess.stream.setDeadline(time.Time{})
	if !s.promote(sess) {
		// 已被关闭或正在停服
		_ = sess.Close()
		return
	}
	s.state.CAS(int32(StateListening), int32(StateRunning))
	s.stat.handshakeOK.Inc()
	xlog.InfoF("client %d connected from %s", id, sess.RemoteAddr())
	s.post(netEvent{evType: eventConnected, id: id})
	s.serveOne(sess)
}

func (s *Server) exchangeID(sess *Session, id uint32) error {
	frame := xpacket.ClientIDSendFrame(id)
	for resend := 0; ; resend++ {
		if err := sess.SyncSend(frame); err != nil {
			return err
		}
		pk, err := sess.Recv()
		if err != nil && !isFrameError(err) {
			return err
		}
		if err == nil && isIDAck(pk, id) {
			return nil
		}
		if resend >= s.cfg.HandshakeRetries {
			return errors.Wrapf(ErrHandshakeMismatch, "id %d after %d resends", id, resend)
		}
		xlog.Debugf("handshake mismatch with %s, resend id %d", sess.RemoteAddr(), id)
	}
}

func isIDAck(pk *xpacket.ReadablePacket, id uint32) bool {
	if pk.Kind() != xpacket.KindSystem || pk.SourceID() != id {
		return false
	}
	info, err := pk.ReadUint8()
	return err == nil && info == xpacket.InfoReceivedIDWell
}

// 服务一个session, 退出时发断开事件
func (s *Server) serveOne(sess *Session) {
	id := sess.ID()
	badFrames := 0
	for {
		pk, err := sess.Recv()
		if err != nil {
			if isFrameError(err) {
				s.stat.badFrames.Inc()
				badFrames++
				xlog.Warnf("drop frame from client %d: %v", id, err)
				if s.cfg.MaxFrameErrors > 0 && badFrames > s.cfg.MaxFrameErrors {
					xlog.Errorf("client %d sent %d bad frames in a row, closing", id, badFrames)
					break
				}
				continue
			}
			errNetLog(err, fmt.Sprintf("[%s] stop serving client %d: %v", s.network(), id, err))
			break
		}
		badFrames = 0
		s.stat.framesIn.Inc()
		if pk.SourceID() != id {
			s.stat.dropped.Inc()
			xlog.Warnf("drop packet from client %d claiming source %d", id, pk.SourceID())
			continue
		}
		switch pk.Kind() {
		case xpacket.KindSystem:
			info, err := pk.ReadUint8()
			if err == nil && info == xpacket.InfoDisconnectRequest {
				xlog.InfoF("client %d requested disconnect", id)
				s.DisconnectClient(id)
			}
		case xpacket.KindCustom:
			s.post(netEvent{evType: eventData, id: id, pk: pk})
		default:
			s.stat.dropped.Inc()
		}
	}
	_ = sess.Close()
	xlog.InfoF("client %d disconnected", id)
	s.post(netEvent{evType: eventDisconnected, id: id})
}

func (s *Server) checkFrame(frame []byte) error {
	if len(frame) > s.cfg.ReadBufferSize {
		return errors.Wrapf(xpacket.ErrBufferOversized, "frame size %d > read buffer %d", len(frame), s.cfg.ReadBufferSize)
	}
	return nil
}

// Send 发给一个client. 未知id什么都不做
func (s *Server) Send(id uint32, pk *xpacket.WritablePacket) error {
	sess := s.GetSession(id)
	if sess == nil {
		return nil
	}
	frame := pk.Frame(xpacket.ServerID)
	if err := s.checkFrame(frame); err != nil {
		return err
	}
	if err := sess.AsyncSend(frame); err == nil {
		s.stat.framesOut.Inc()
	}
	return nil
}

// Broadcast 发给所有已握手的client, 只编码一次
func (s *Server) Broadcast(pk *xpacket.WritablePacket) error {
	frame := pk.Frame(xpacket.ServerID)
	if err := s.checkFrame(frame); err != nil {
		return err
	}
	for _, sess := range s.Sessions() {
		if err := sess.AsyncSend(frame); err == nil {
			s.stat.framesOut.Inc()
		}
	}
	return nil
}

// DisconnectClient 关闭连接并归还id, OnDisconnected由连接goroutine触发
func (s *Server) DisconnectClient(id uint32) bool {
	sess := s.GetSession(id)
	if sess == nil {
		return false
	}
	done, err := sess.shutdown()
	if err != nil {
		errNetLog(err, fmt.Sprintf("close client %d err=%v", id, err))
	}
	return done
}

func (s *Server) flushWait() time.Duration {
	if s.cfg.IOTimeout.Duration > 0 {
		return s.cfg.IOTimeout.Duration
	}
	return defaultFlushWait
}

// Stop graceful时先给每个client写停服通知.
// 会等连接goroutine退出, 不能在ServerHandler回调里调用
func (s *Server) Stop(graceful bool) error {
	stopped, err := s.stop(graceful)
	if stopped {
		s.post(netEvent{evType: eventStop})
	}
	return err
}

func (s *Server) stop(graceful bool) (bool, error) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	st := s.State()
	if st == StateStopped || st == StateStopping {
		return false, ErrNotRunning
	}
	s.state.Store(int32(StateStopping))
	close(s.closeSig)
	err := s.listener.Close()
	<-s.acceptDone

	active, pending := s.closeAll()
	notice := xpacket.ServerHasStoppedFrame()
	for _, sess := range active {
		var cerr error
		if graceful {
			cerr = sess.CloseGraceful(notice, s.flushWait())
		} else {
			cerr = sess.Close()
		}
		if cerr != nil && !errors.Is(cerr, ErrSessionClosed) {
			err = multierr.Append(err, cerr)
		}
	}
	for _, sess := range pending {
		err = multierr.Append(err, sess.Close())
	}
	s.wg.Wait()

	s.state.Store(int32(StateStopped))
	xlog.InfoF("server %s stopped", s.addr.Load())
	return true, err
}
