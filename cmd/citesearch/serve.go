package main

import (
	"os/signal"
	"syscall"

	"github.com/mohammad-safakhou/citesearch/config"
	srv "github.com/mohammad-safakhou/citesearch/internal/server"
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(*cfgPath)
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			e := srv.New(a.pipeline, a.hub, srv.Options{
				CORSOrigins:       cfg.Server.CORSOrigins,
				MaxProcessingTime: cfg.General.MaxProcessingTime,
				Metrics:           a.telemetry.MetricsHandler(),
				Logger:            a.logger,
			})
			return srv.Serve(ctx, e, cfg.Server.Address, a.logger.Named("server"))
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	return serve
}

