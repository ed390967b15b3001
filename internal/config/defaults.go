package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		Catalog: CatalogConfig{
			Path: "catalog.db",
		},
		Codec: CodecConfig{
			Mode:           CodecModeNone,
			Timeout:        Duration(30 * time.Second),
			ConnectTimeout: Duration(10 * time.Second),
			Attempts:       2,
		},
		Transcoder: TranscoderConfig{
			FFmpeg:          "ffmpeg",
			FFprobe:         "ffprobe",
			Timeout:         Duration(2 * time.Minute),
			PrefetchWorkers: 3,
		},
		Cache: CacheConfig{
			Path:           "emoji.cache",
			MaxEntries:     100000,
			FlushThreshold: 15,
			Blob: BlobConfig{
				Region: "us-east-1",
				Key:    "wxmedia/emoji.cache",
			},
		},
		Fetch: FetchConfig{
			UserAgent: "Mozilla/5.0 (Linux; Android 10) wxmedia",
			Timeout:   Duration(30 * time.Second),
			RateLimit: 10,
			Burst:     5,
			MaxBytes:  ByteSize(32 * 1024 * 1024), // 32MB
		},
		NATS: NATSConfig{
			ConnectionName: "wxmedia",
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":8080",
			CodecResponder: CodecResponderConfig{
				Enabled: false,
				Subject: "wxmedia.codec.decode",
				Queue:   "wxmedia-codec",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       true,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
	}
}
