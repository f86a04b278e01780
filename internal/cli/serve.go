package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ragqa/internal/app"
	"ragqa/internal/server"
)

var (
	serveAddr  string
	serveTitle string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat page and question API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := app.Bootstrap(ctx, cfg, logger)
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Server.Addr = serveAddr
		}
		return server.New(cfg.Server, rt.Pipeline, serveTitle, logger).Run(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&serveTitle, "title", "", "title shown on the chat page")
	rootCmd.AddCommand(serveCmd)
}
