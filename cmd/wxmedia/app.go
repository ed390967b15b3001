package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/wxmedia/internal/block"
	"github.com/gftdcojp/wxmedia/internal/cache"
	"github.com/gftdcojp/wxmedia/internal/catalog"
	"github.com/gftdcojp/wxmedia/internal/codec"
	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/gftdcojp/wxmedia/internal/fetch"
	"github.com/gftdcojp/wxmedia/internal/resolve"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/voice"
	"github.com/gftdcojp/wxmedia/pkg/natsutil"
	"github.com/gftdcojp/wxmedia/pkg/s3util"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// app owns every long-lived component built from the config.
type app struct {
	cfg      *config.Config
	layout   resource.Layout
	nc       *nats.Conn
	s3       *s3util.Client
	catalog  *catalog.BoltCatalog
	index    *block.SQLiteIndex
	gateway  *codec.Gateway
	resolver *resolve.Resolver
	logger   *zap.Logger
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, layout: resource.NewLayout(cfg.Resource.Root), logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	cfg, logger := a.cfg, a.logger
	var err error
	if cfg.NeedsNATS() {
		a.nc, err = natsutil.Connect(cfg.NATS, logger)
		if err != nil {
			return err
		}
	}

	a.catalog, err = catalog.OpenBolt(cfg.Catalog.Path, cfg.Catalog.NoSync, logger.Named("catalog"))
	if err != nil {
		return fmt.Errorf("opening catalog: %w", err)
	}
	if cfg.Catalog.SQLiteDSN != "" {
		if _, err = catalog.ImportSQLite(ctx, cfg.Catalog.SQLiteDSN, a.catalog, logger.Named("catalog")); err != nil {
			return fmt.Errorf("importing message database: %w", err)
		}
	}

	var index block.Index
	if cfg.Avatar.IndexDB != "" {
		a.index, err = block.OpenSQLiteIndex(cfg.Avatar.IndexDB)
		if err != nil {
			return fmt.Errorf("opening avatar index: %w", err)
		}
		index = a.index
	}

	a.gateway, err = a.newGateway()
	if err != nil {
		return err
	}

	mediaCache, err := a.newCache(ctx)
	if err != nil {
		return err
	}

	fetcher := fetch.New(nil, fetch.Options{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.Fetch.Timeout.Duration(),
		RateLimit: cfg.Fetch.RateLimit,
		Burst:     cfg.Fetch.Burst,
		MaxBytes:  int64(cfg.Fetch.MaxBytes),
	}, logger.Named("fetch"))

	pipeline := voice.NewPipeline(
		voice.FFmpeg{Path: cfg.Transcoder.FFmpeg},
		voice.SilkDecoder{Path: cfg.Transcoder.SilkDecoder},
		voice.FFprobe{Path: cfg.Transcoder.FFprobe},
		voice.Options{Timeout: cfg.Transcoder.Timeout.Duration()},
		logger.Named("voice"),
	)

	a.resolver = resolve.New(resolve.Deps{
		Layout:          a.layout,
		Index:           index,
		Gateway:         a.gateway,
		Cache:           mediaCache,
		Fetcher:         fetcher,
		Voice:           pipeline,
		Catalog:         a.catalog,
		PrefetchWorkers: cfg.Transcoder.PrefetchWorkers,
	}, logger.Named("resolve"))
	return nil
}

func (a *app) newGateway() (*codec.Gateway, error) {
	opts := codec.Options{
		Timeout:  a.cfg.Codec.Timeout.Duration(),
		Attempts: a.cfg.Codec.Attempts,
	}
	logger := a.logger.Named("codec")

	switch a.cfg.Codec.Mode {
	case config.CodecModeWebSocket:
		t := codec.NewWebSocketTransport(a.cfg.Codec.URL, a.cfg.Codec.ConnectTimeout.Duration(), logger)
		logger.Info("image decoder configured", zap.String("url", t.URL()))
		return codec.NewGateway(t, opts, logger), nil
	case config.CodecModeNATS:
		if a.nc == nil {
			return nil, fmt.Errorf("codec mode nats needs a NATS connection")
		}
		logger.Info("image decoder configured", zap.String("subject", a.cfg.Codec.Subject))
		return codec.NewGateway(codec.NewNATSTransport(a.nc, a.cfg.Codec.Subject), opts, logger), nil
	default:
		return codec.NewGateway(nil, opts, logger), nil
	}
}

func (a *app) newCache(ctx context.Context) (*cache.Cache, error) {
	logger := a.logger.Named("cache")
	opts := cache.Options{MaxEntries: a.cfg.Cache.MaxEntries, FlushThreshold: a.cfg.Cache.FlushThreshold}

	var p cache.Persister
	if a.cfg.Cache.Blob.Enabled {
		client, err := s3util.NewClient(ctx, a.cfg.Cache.Blob)
		if err != nil {
			return nil, fmt.Errorf("creating S3 client: %w", err)
		}
		a.s3 = client
		p = cache.NewBlobPersister(client.S3, client.Bucket, client.Key, logger)
	} else if a.cfg.Cache.Path != "" {
		p = cache.NewFilePersister(a.cfg.Cache.Path)
	}
	return cache.Open(ctx, p, opts, logger), nil
}

// Close flushes the cache and releases every resource. It is safe on a
// partially built app.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.resolver != nil {
		if err := a.resolver.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	} else if a.gateway != nil {
		a.gateway.Close()
	}
	if a.index != nil {
		if err := a.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing avatar index: %w", err))
		}
	}
	if a.catalog != nil {
		if err := a.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing catalog: %w", err))
		}
	}
	natsutil.Drain(a.nc, 5*time.Second)
	return errors.Join(errs...)
}
