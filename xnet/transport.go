package xnet

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/xtaci/kcp-go"

	"github.com/qixi7/xjustnet/xconfig"
)

// kcp参数, 与tcp一样可靠有序的流
const (
	kcpInterval = 40
	kcpWnd      = 256
	kcpMtu      = 1200 // 1492 - 28 以下, 避免底层分包
	kcpDSCP     = 46
)

func listen(network, addr string) (net.Listener, error) {
	switch network {
	case xconfig.NetworkTCP, "":
		return net.Listen("tcp", addr)
	case xconfig.NetworkKCP:
		return kcp.Listen(addr)
	default:
		return nil, errors.Wrap(ErrUnknownNetwork, network)
	}
}

func dial(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case xconfig.NetworkTCP, "":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", addr)
	case xconfig.NetworkKCP:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return kcp.Dial(addr)
	default:
		return nil, errors.Wrap(ErrUnknownNetwork, network)
	}
}

// tuneConn 连接建立后的参数设置
func tuneConn(conn net.Conn) {
	switch c := conn.(type) {
	case *net.TCPConn:
		_ = c.SetNoDelay(true)
	case *kcp.UDPSession:
		c.SetNoDelay(0, kcpInterval, 0, 0)
		c.SetStreamMode(true)
		c.SetWindowSize(kcpWnd, kcpWnd)
		c.SetMtu(kcpMtu)
		_ = c.SetDSCP(kcpDSCP)
	}
}

// kcp的accept要等到对端第一个包, 客户端拨号后先写一个空frame
func needsOpener(network string) bool {
	return network == xconfig.NetworkKCP
}
