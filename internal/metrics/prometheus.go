package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Resolver metrics
	ResolveRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_resolve_requests_total",
		Help: "Media lookups by kind and outcome",
	}, []string{"kind", "outcome"})

	ResolveLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wxmedia_resolve_latency_seconds",
		Help:    "End-to-end media lookup latency",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"kind"})

	TierAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_tier_attempts_total",
		Help: "Resolver tier attempts by kind, tier and outcome",
	}, []string{"kind", "tier", "outcome"})

	TierLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wxmedia_tier_latency_seconds",
		Help:    "Latency of a single resolver tier",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	}, []string{"kind", "tier"})

	// Media cache metrics
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wxmedia_cache_entries",
		Help: "Entries held by the media cache",
	})

	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_cache_ops_total",
		Help: "Media cache operations (hit, miss, put, flush, evict)",
	}, []string{"op"})

	CacheFlushErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wxmedia_cache_flush_errors_total",
		Help: "Media cache flushes that failed to persist",
	})

	// External codec metrics
	CodecRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_codec_requests_total",
		Help: "Proprietary image decode requests by outcome",
	}, []string{"outcome"})

	CodecLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "wxmedia_codec_latency_seconds",
		Help:    "Decode service round trip latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	// Fetch metrics
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_fetch_requests_total",
		Help: "Remote fetches by channel and outcome",
	}, []string{"channel", "outcome"})

	FetchBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_fetch_bytes_total",
		Help: "Bytes downloaded by channel",
	}, []string{"channel"})

	// Voice metrics
	TranscodeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wxmedia_transcode_requests_total",
		Help: "Voice transcodes by source container and outcome",
	}, []string{"container", "outcome"})

	TranscodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wxmedia_transcode_duration_seconds",
		Help:    "Wall time of a voice transcode",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"container"})

	PrefetchInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wxmedia_prefetch_in_flight",
		Help: "Voice prefetch tasks submitted but not finished",
	})
)

// RunServer starts the Prometheus metrics HTTP server.
func RunServer(ctx context.Context, cfg config.MetricsConfig) error {
	mux := http.NewServeMux()
	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.Handler())

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
