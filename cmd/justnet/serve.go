package main

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xconsul"
	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xmetric"
	"github.com/qixi7/xjustnet/xnet"
	"github.com/qixi7/xjustnet/xpacket"
	"github.com/qixi7/xjustnet/xutil"
)

type serveOptions struct {
	configPath string
	port       int
	maxConn    uint32
	network    string
	admin      string
	pidFile    string
	fps        int
	profMode   string
	profDir    string
}

func serveCmd() *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run an echo server",
		Long: `Run a server that logs connections and echoes every user packet back
to the client that sent it.

Flags override the values read from --config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("port") {
				cfg.Port = o.port
			}
			if flags.Changed("max-conn") {
				cfg.MaxConnections = o.maxConn
			}
			if flags.Changed("network") {
				cfg.Network = o.network
			}
			if flags.Changed("admin") {
				cfg.Admin.Addr = o.admin
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			return runServe(cfg, o)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Config file (.toml/.yaml)")
	f.IntVarP(&o.port, "port", "p", xpacket.DefaultPort, "Port to listen on")
	f.Uint32Var(&o.maxConn, "max-conn", xconfig.DefaultMaxConnections, "Maximum simultaneous clients")
	f.StringVar(&o.network, "network", xconfig.NetworkTCP, "Transport: tcp or kcp")
	f.StringVar(&o.admin, "admin", "", "Admin http address, empty disables it")
	f.StringVar(&o.pidFile, "pid", "", "Pid file, empty disables it")
	f.IntVar(&o.fps, "fps", 50, "Main loop frames per second")
	f.StringVar(&o.profMode, "prof", "", "Profile modes collected until exit, such as \"cpu,mem\"")
	f.StringVar(&o.profDir, "prof-dir", ".", "Directory for profile files")
	return cmd
}

// echoServer 原样回发用户包
type echoServer struct{}

func (echoServer) OnStart(s *xnet.Server) {
	xlog.InfoF("echo server listening on %s/%s", s.Config().Network, s.Addr())
}

func (echoServer) OnStop(s *xnet.Server) {
	xlog.InfoF("echo server stopped")
}

func (echoServer) OnConnected(s *xnet.Server, id uint32) {
	xlog.InfoF("client %d connected, %d online", id, s.ConnectedCount())
}

func (echoServer) OnDisconnected(s *xnet.Server, id uint32) {
	xlog.InfoF("client %d disconnected", id)
}

func (echoServer) OnData(s *xnet.Server, id uint32, pk *xpacket.ReadablePacket) {
	if err := s.Send(id, xpacket.NewWritablePacketFrom(pk.Bytes())); err != nil {
		xlog.Warnf("echo to client %d err=%v", id, err)
	}
}

func runServe(cfg *xconfig.Config, o serveOptions) error {
	if err := xlog.Init(cfg.Log); err != nil {
		return err
	}
	defer xlog.Close()

	runner := xnet.NewRunner(cfg)
	app := xutil.NewApplication().
		SetFPS(o.fps).
		SetPidFile(o.pidFile).
		SetProfile(o.profDir, o.profMode).
		SetHttpListen(cfg.Admin.Addr)

	var (
		srv      *xnet.Server
		gather   *xmetric.Gather
		registry *xconsul.ConsulClient
		startErr error
	)
	err := app.Init(func() bool {
		srv, startErr = runner.RunAsServer(echoServer{})
		if startErr != nil {
			return false
		}
		gather = xmetric.NewGather(func() xmetric.MetricJob {
			return xmetric.JobList{app.MetricJob(), xnet.NewServerMetric(srv)}
		})
		gather.Program("justnet").Init()
		xutil.ServerCmds(app, srv)
		app.Handle("/metrics", gather.Handler())

		if cfg.Consul.HttpAddr != "" {
			host, portStr, _ := net.SplitHostPort(srv.Addr())
			port, _ := strconv.Atoi(portStr)
			registry = xconsul.NewServerClient(cfg, host, port)
			if startErr = registry.Register(); startErr != nil {
				_ = srv.Stop(false)
				return false
			}
		}
		return true
	})
	if err != nil {
		if startErr != nil {
			return errors.Wrap(startErr, "start server")
		}
		return err
	}

	app.Run(func(dt int64) {
		srv.ProcessEvent()
		gather.Run(dt)
	})

	app.Destroy(func() {
		if registry != nil {
			if err := registry.DeRegister(); err != nil {
				xlog.Warnf("%v", err)
			}
		}
		if err := runner.Stop(true); err != nil {
			xlog.Errorf("stop server err=%v", err)
		}
		// PostEvent模式下把停止事件处理完
		for !srv.ProcessEvent() {
		}
	})
	return nil
}
