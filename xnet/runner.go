package xnet

import (
	"context"
	"sync"

	"github.com/qixi7/xjustnet/xconfig"
)

type Role int

const (
	RoleNone Role = iota
	RoleServer
	RoleClient
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	default:
		return "none"
	}
}

// Runner 进程内的网络入口, 第一次运行后角色固定
type Runner struct {
	mu     sync.Mutex
	cfg    *xconfig.Config
	role   Role
	server *Server
	client *Client
}

func NewRunner(cfg *xconfig.Config) *Runner {
	if cfg == nil {
		cfg = xconfig.Default()
	}
	return &Runner{cfg: cfg}
}

func (r *Runner) Role() Role {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.role
}

func (r *Runner) Config() *xconfig.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// SetConfig 运行中不允许改配置
func (r *Runner) SetConfig(cfg *xconfig.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isRunning() {
		return ErrNotStopped
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.cfg = cfg
	return nil
}

func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isRunning()
}

func (r *Runner) isRunning() bool {
	switch {
	case r.server != nil:
		return r.server.State() != StateStopped
	case r.client != nil:
		return r.client.State() != StateDisconnected
	}
	return false
}

func (r *Runner) RunAsServer(handler ServerHandler) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role == RoleClient {
		return nil, ErrRoleLocked
	}
	if r.isRunning() {
		return nil, ErrNotStopped
	}
	s := NewServer(r.cfg, handler)
	if err := s.Start(); err != nil {
		return nil, err
	}
	r.role = RoleServer
	r.server = s
	return s, nil
}

// RunAsClient 连接host上配置的端口
func (r *Runner) RunAsClient(ctx context.Context, host string, handler ClientHandler) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.role == RoleServer {
		return nil, ErrRoleLocked
	}
	if r.isRunning() {
		return nil, ErrNotStopped
	}
	c := NewClient(r.cfg, handler)
	if err := c.Connect(ctx, host, r.cfg.Port); err != nil {
		return nil, err
	}
	r.role = RoleClient
	r.client = c
	return c, nil
}

// Stop graceful对client表示发送断开请求
func (r *Runner) Stop(graceful bool) error {
	r.mu.Lock()
	s, c := r.server, r.client
	r.mu.Unlock()
	switch {
	case s != nil:
		return s.Stop(graceful)
	case c != nil:
		return c.Stop(!graceful)
	}
	return ErrNotRunning
}
