package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the wallet API over local HTTP",
	Long: `Serve connect, sign and send over a local HTTP API for hosts that cannot
link Go, such as game engine runtimes. Pairing links and one-time code
prompts are queued at /v1/approvals for the host to show and answer.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address (default from config, 127.0.0.1:8645)")
}

func runServe(cmd *cobra.Command, args []string) error {
	approvals := server.NewApprovals()
	a, err := newApp(cmd, approvals)
	if err != nil {
		return err
	}
	defer a.Close()

	addr := a.cfg.Server.Addr
	if s, _ := cmd.Flags().GetString("addr"); s != "" {
		addr = s
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(a.out, "Serving walletkit API on http://%s\n", addr)
	return server.New(a.kit, approvals, a.metrics, a.log).Run(ctx, addr)
}
