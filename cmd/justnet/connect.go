package main

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xnet"
	"github.com/qixi7/xjustnet/xpacket"
)

var ErrEchoTimeout = errors.New("justnet: no echo from server")

type connectOptions struct {
	configPath string
	host       string
	port       int
	network    string
	message    string
	timeout    time.Duration
}

func connectCmd() *cobra.Command {
	var o connectOptions
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Send one message to a server and print the echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(o.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Port = o.port
			}
			if cmd.Flags().Changed("network") {
				cfg.Network = o.network
			}
			if err = cfg.Validate(); err != nil {
				return err
			}
			if err = xlog.Init(cfg.Log); err != nil {
				return err
			}
			defer xlog.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			reply, err := exchange(ctx, cfg, o.host, o.message)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.configPath, "config", "c", "", "Config file (.toml/.yaml)")
	f.StringVarP(&o.host, "host", "H", "127.0.0.1", "Server host")
	f.IntVarP(&o.port, "port", "p", xpacket.DefaultPort, "Server port")
	f.StringVar(&o.network, "network", xconfig.NetworkTCP, "Transport: tcp or kcp")
	f.StringVarP(&o.message, "message", "m", "hello", "Message to send")
	f.DurationVar(&o.timeout, "timeout", 10*time.Second, "Overall timeout")
	return cmd
}

// exchange 连上服务器, 发一个字符串包, 等回包后主动断开
func exchange(ctx context.Context, cfg *xconfig.Config, host, message string) (string, error) {
	cfg.PostEvent = false
	replies := make(chan string, 1)
	runner := xnet.NewRunner(cfg)
	c, err := runner.RunAsClient(ctx, host, xnet.ClientHandlerFuncs{
		Connected: func(c *xnet.Client, id uint32) {
			xlog.InfoF("connected as client %d", id)
		},
		Data: func(c *xnet.Client, pk *xpacket.ReadablePacket) {
			s, err := pk.ReadString()
			if err != nil {
				xlog.Warnf("bad echo packet err=%v", err)
				return
			}
			select {
			case replies <- s:
			default:
			}
		},
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if err := runner.Stop(true); err != nil && !errors.Is(err, xnet.ErrNotRunning) {
			xlog.Warnf("stop client err=%v", err)
		}
	}()
	if err = c.WaitActive(ctx); err != nil {
		return "", err
	}
	pk := xpacket.NewWritablePacket()
	pk.WriteString(message)
	if !c.Send(pk) {
		return "", xnet.ErrNotRunning
	}
	select {
	case s := <-replies:
		return s, nil
	case <-ctx.Done():
		return "", errors.Wrap(ErrEchoTimeout, ctx.Err().Error())
	}
}
