package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nartya-app/nartya/internal/server"
	"github.com/nartya-app/nartya/internal/util"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local HTTP API",
	Long: `Start the local HTTP API.

API Endpoints:
  GET    /api/health            Health check
  POST   /api/extract           Resolve one embed URL
  POST   /api/extract/batch     Resolve several embed URLs
  POST   /api/analyze           Rank the sources of a listing
  POST   /api/probe             Check a direct video URL
  POST   /api/season            Load a listing
  POST   /api/season/language   Switch language
  POST   /api/season/source     Switch source
  POST   /api/season/play       Resolve an episode
  GET    /api/cache             List cached episodes
  DELETE /api/cache             Clear the episode cache
  GET    /metrics               Prometheus metrics`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := cfg.Server.Addr
		if serveAddr != "" {
			addr = serveAddr
		}

		rt, err := newRuntime(cfg)
		if err != nil {
			return err
		}
		defer rt.Close()

		srv := server.New(addr, server.Deps{
			Engine:    rt.engine,
			Navigator: rt.navigator,
			Cache:     rt.cache,
			Prober:    newProber(cfg),
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		util.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Stop(shutdownCtx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config server.addr)")
	rootCmd.AddCommand(serveCmd)
}
