package xnet

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/qixi7/xjustnet/xpacket"
)

const (
	packetSizeLimit = 4 * 1024 * 1024 // 4 MB, 超过直接断开
)

// frameStream 在字节流上切分frame: [len][frame]. len==0的空frame读时跳过(kcp建链用)
type frameStream struct {
	conn       net.Conn
	headFormat HeadFormater
	headLen    int
	rheadBuf   []byte
	timeout    time.Duration // 每次读写的超时, 0表示不设
	deadline   time.Time     // 握手期间的总超时, 覆盖timeout
	wmu        sync.Mutex
}

func newFrameStream(conn net.Conn, headFmt HeadFormater, timeout time.Duration) *frameStream {
	headLen := headFmt.HeadLen()
	return &frameStream{
		conn:       conn,
		headFormat: headFmt,
		headLen:    headLen,
		rheadBuf:   make([]byte, headLen),
		timeout:    timeout,
	}
}

// 只在读goroutine调用
func (s *frameStream) setDeadline(t time.Time) {
	s.wmu.Lock()
	s.deadline = t
	s.wmu.Unlock()
	_ = s.conn.SetDeadline(t)
}

func (s *frameStream) readDeadline() {
	if !s.deadline.IsZero() {
		return
	}
	if s.timeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.timeout))
	}
}

// ReadFrame 读一个frame到buf. frame超过buf时丢弃其字节并返回ErrBufferOversized, 流仍对齐
func (s *frameStream) ReadFrame(buf []byte) (int, error) {
	for {
		s.readDeadline()
		if _, err := io.ReadFull(s.conn, s.rheadBuf); err != nil {
			return 0, err
		}
		size := s.headFormat.Decode(s.rheadBuf)
		if size == 0 {
			continue
		}
		if size > packetSizeLimit {
			return 0, errors.Wrapf(ErrPacketSizeLimitExceeded, "frame size %d", size)
		}
		if size > len(buf) {
			if _, err := io.CopyN(io.Discard, s.conn, int64(size)); err != nil {
				return 0, err
			}
			return size, errors.Wrapf(xpacket.ErrBufferOversized, "frame size %d > read buffer %d", size, len(buf))
		}
		if _, err := io.ReadFull(s.conn, buf[:size]); err != nil {
			return 0, err
		}
		return size, nil
	}
}

// WriteFrame goroutine safe
func (s *frameStream) WriteFrame(frame []byte) error {
	buf := make([]byte, s.headLen+len(frame))
	s.headFormat.Encode(buf, len(frame))
	copy(buf[s.headLen:], frame)

	s.wmu.Lock()
	defer s.wmu.Unlock()
	if s.deadline.IsZero() && s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	return writeFull(s.conn, buf)
}

func (s *frameStream) Close() error {
	return s.conn.Close()
}
