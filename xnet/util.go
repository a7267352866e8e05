package xnet

import (
	"runtime"
	"strings"

	"github.com/pkg/errors"

	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xpacket"
)

var (
	ErrNotStopped        = errors.New("xnet: engine not stopped")
	ErrNotRunning        = errors.New("xnet: engine not running")
	ErrNotDisconnected   = errors.New("xnet: client not disconnected")
	ErrHandshakeMismatch = errors.New("xnet: handshake mismatch")
	ErrHandshakeFailed   = errors.New("xnet: handshake failed")
	ErrSessionClosed     = errors.New("xnet: session closed")
	ErrRoleLocked        = errors.New("xnet: runner role locked")
	ErrUnknownNetwork    = errors.New("xnet: unknown network")

	ErrPacketSizeLimitExceeded = errors.New("xnet: packet size limit exceeded")
)

func writeFull(w interface{ Write([]byte) (int, error) }, b []byte) error {
	size := len(b)
	pos := 0
	for pos < size {
		n, err := w.Write(b[pos:])
		if err != nil {
			return err
		}
		pos += n
		if n == 0 {
			runtime.Gosched()
		}
	}
	return nil
}

// 丢帧但不断连接的错误
func isFrameError(err error) bool {
	return errors.Is(err, xpacket.ErrFrameTooShort) || errors.Is(err, xpacket.ErrBufferOversized)
}

// 检测是否需要打该log
func errNetLog(err error, str string) {
	errstr := err.Error()
	if !strings.Contains(errstr, "use of closed network connection") &&
		!strings.Contains(errstr, "EOF") &&
		!strings.Contains(errstr, "io: read/write on closed pipe") &&
		!errors.Is(err, ErrSessionClosed) &&
		!strings.Contains(errstr, "connection reset by peer") &&
		!strings.Contains(errstr, "broken pipe") {
		xlog.ErrorfSkip(1, "%s", str)
	}
}
