package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/Another0Noob/animecatalog/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the addon server",
	Long: `Run the addon HTTP server together with the background catalog refresh
and periodic cache flush. Interrupt shuts down gracefully and flushes state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), cfgFile)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := api.NewCatalogAPI(a.svc, a.cfg.Missing(), a.logger.With("component", "api")).Router()

	var wg conc.WaitGroup
	wg.Go(func() { a.svc.Run(ctx) })

	err = api.Serve(ctx, a.cfg.Server.Host, a.cfg.Server.Port, handler, a.cfg.Server.ShutdownTimeout, a.logger)
	stop()
	wg.Wait()
	return err
}
