package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/serve"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP media API, the codec responder and the observability servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.Observability.Logging)
			if err != nil {
				return fmt.Errorf("creating logger: %w", err)
			}
			defer logger.Sync()

			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}

			eg, gctx := errgroup.WithContext(ctx)

			if cfg.API.Enabled {
				eg.Go(func() error {
					return serve.RunHTTP(gctx, cfg.API, a.resolver, a.layout, logger.Named("api"))
				})
			}

			if cfg.API.CodecResponder.Enabled {
				eg.Go(func() error {
					return serve.RunCodecResponder(gctx, a.nc, cfg.API.CodecResponder, a.gateway, logger.Named("codec-responder"))
				})
			}

			if cfg.Observability.Metrics.Enabled {
				eg.Go(func() error { return metrics.RunServer(gctx, cfg.Observability.Metrics) })
			}

			if cfg.Observability.Health.Enabled {
				var blob metrics.RemotePinger
				if a.s3 != nil {
					blob = a.s3
				}
				checker := metrics.NewHealthChecker(a.nc, a.catalog, blob, a.gateway)
				eg.Go(func() error {
					return metrics.RunHealthServer(gctx, cfg.Observability.Health, checker)
				})
			}

			logger.Info("wxmedia started",
				zap.String("version", version),
				zap.String("root", cfg.Resource.Root),
				zap.String("codec", cfg.Codec.Mode),
			)

			runErr := eg.Wait()

			logger.Info("shutting down, flushing media cache...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := a.Close(shutdownCtx); err != nil {
				logger.Error("error during shutdown", zap.Error(err))
			}

			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			return nil
		},
	}
}
