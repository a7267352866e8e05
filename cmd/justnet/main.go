// Command justnet runs an echo server or a one-shot client over the xnet engine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/qixi7/xjustnet/xconfig"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "justnet",
		Short: "Client/server packet engine with server-assigned client ids",
		Long: `justnet runs a server that hands every client a numeric id during a
handshake, or a client that connects to such a server.

Examples:
  justnet serve --port=12345 --max-conn=16
  justnet serve --config=justnet.toml
  justnet connect --host=127.0.0.1 --port=12345 --message=hello`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(serveCmd(), connectCmd())
	return cmd
}

// 没给配置文件就用默认配置
func loadConfig(path string) (*xconfig.Config, error) {
	if path == "" {
		return xconfig.Default(), nil
	}
	return xconfig.Load(path)
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
