package xnet

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"github.com/qixi7/xjustnet/xcontainer/channel"
	"github.com/qixi7/xjustnet/xpacket"
)

var errReadInFlight = errors.New("xnet: read already in flight")

type sendItem struct {
	frame   []byte
	flushed chan struct{} // 非nil表示flush标记, 写到这里时close
}

// Session 一条连接. 读由所属goroutine驱动, 写经发送队列由sender goroutine顺序写出
type Session struct {
	id             atomic.Uint32
	conn           net.Conn
	stream         *frameStream
	readBuf        []byte
	sendChan       *channel.SliceChan[sendItem]
	reading        atomic.Bool // 同时只允许一个读
	writing        atomic.Bool // sender正在写
	closed         atomic.Bool
	done           chan struct{}
	closeMu        sync.Mutex
	closeCallbacks []func(*Session)
	userData       interface{}
	local, remote  net.Addr
}

func newSession(conn net.Conn, headFmt HeadFormater, readBufSize int, queueBufLen int, timeout time.Duration) *Session {
	s := &Session{
		conn:     conn,
		stream:   newFrameStream(conn, headFmt, timeout),
		readBuf:  make([]byte, readBufSize),
		sendChan: channel.NewSliceChan[sendItem](queueBufLen),
		local:    conn.LocalAddr(),
		remote:   conn.RemoteAddr(),
		done:     make(chan struct{}),
	}
	s.id.Store(xpacket.UnassignedID)
	go s.sender()
	return s
}

func (s *Session) ID() uint32 {
	return s.id.Load()
}

func (s *Session) setID(id uint32) {
	s.id.Store(id)
}

func (s *Session) RemoteAddr() string {
	return s.remote.String()
}

func (s *Session) LocalAddr() string {
	return s.local.String()
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func (s *Session) InFlightRead() bool {
	return s.reading.Load()
}

func (s *Session) InFlightWrite() bool {
	return s.writing.Load()
}

// 发送队列长度
func (s *Session) Pending() int {
	return s.sendChan.Len()
}

// add 关闭连接回调. 需在连接可能关闭前加入
func (s *Session) AddCloseCallback(cb func(*Session)) {
	s.closeMu.Lock()
	s.closeCallbacks = append(s.closeCallbacks, cb)
	s.closeMu.Unlock()
}

// Recv 读一个frame并解码. 读缓冲在解码后清零复用
func (s *Session) Recv() (*xpacket.ReadablePacket, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if !s.reading.CAS(false, true) {
		return nil, errReadInFlight
	}
	defer s.reading.Store(false)

	n, err := s.stream.ReadFrame(s.readBuf)
	if err != nil {
		if s.closed.Load() {
			return nil, ErrSessionClosed
		}
		return nil, err
	}
	pk, err := xpacket.DecodePacket(s.readBuf, n, len(s.readBuf))
	clear(s.readBuf[:n])
	return pk, err
}

// SyncSend gorouteine safe, 直接写连接
func (s *Session) SyncSend(frame []byte) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if err := s.stream.WriteFrame(frame); err != nil {
		_ = s.Close()
		return err
	}
	return nil
}

// AsyncSend 入队即返回, 不等待之前的写
func (s *Session) AsyncSend(frame []byte) error {
	if !s.sendChan.Write(sendItem{frame: frame}) {
		return ErrSessionClosed
	}
	return nil
}

func (s *Session) sender() {
	for {
		item, ok := s.sendChan.Read()
		if !ok {
			return
		}
		if item.flushed != nil {
			close(item.flushed)
			continue
		}
		s.writing.Store(true)
		err := s.stream.WriteFrame(item.frame)
		s.writing.Store(false)
		if err != nil {
			errNetLog(err, fmt.Sprintf("session %d sender write err=%v", s.ID(), err))
			_ = s.Close()
			return
		}
	}
}

// CloseGraceful 把notice排在已入队的数据之后写出, 最多等wait后关闭
func (s *Session) CloseGraceful(notice []byte, wait time.Duration) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	flushed := make(chan struct{})
	var err error
	if len(notice) > 0 {
		s.sendChan.Write(sendItem{frame: notice})
	}
	if s.sendChan.Write(sendItem{flushed: flushed}) {
		timer := time.NewTimer(wait)
		select {
		case <-flushed:
		case <-s.done:
		case <-timer.C:
			err = errors.Errorf("xnet: session %d flush timeout after %v", s.ID(), wait)
		}
		timer.Stop()
	}
	return multierr.Append(err, s.Close())
}

func (s *Session) Close() error {
	_, err := s.shutdown()
	return err
}

// 只有第一次调用做清理并回调, 返回是否由本次调用完成
func (s *Session) shutdown() (bool, error) {
	if !s.closed.CAS(false, true) {
		return false, nil
	}
	close(s.done)
	s.sendChan.Close()
	err := s.stream.Close()

	s.closeMu.Lock()
	cbs := s.closeCallbacks
	s.closeMu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
	return true, err
}

func (s *Session) GetUserData() interface{} {
	return s.userData
}

func (s *Session) SetUserData(ud interface{}) {
	s.userData = ud
}
