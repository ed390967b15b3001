package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Resource      ResourceConfig      `yaml:"resource"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Avatar        AvatarConfig        `yaml:"avatar"`
	Codec         CodecConfig         `yaml:"codec"`
	Transcoder    TranscoderConfig    `yaml:"transcoder"`
	Cache         CacheConfig         `yaml:"cache"`
	Fetch         FetchConfig         `yaml:"fetch"`
	NATS          NATSConfig          `yaml:"nats"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ResourceConfig points at the copied on-device resource directory.
type ResourceConfig struct {
	Root string `yaml:"root"`
}

// CatalogConfig locates the imported schema rows.
type CatalogConfig struct {
	Path      string `yaml:"path"`
	NoSync    bool   `yaml:"no_sync"`
	// SQLiteDSN, when set, is imported into the catalog at startup.
	SQLiteDSN string `yaml:"sqlite_dsn"`
}

type AvatarConfig struct {
	// IndexDB is the sqlite database holding the Index_avatar table.
	IndexDB string `yaml:"index_db"`
}

const (
	CodecModeNone      = "none"
	CodecModeWebSocket = "websocket"
	CodecModeNATS      = "nats"
)

type CodecConfig struct {
	Mode           string   `yaml:"mode"`
	URL            string   `yaml:"url"`
	Subject        string   `yaml:"subject"`
	Timeout        Duration `yaml:"timeout"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	Attempts       int      `yaml:"attempts"`
}

type TranscoderConfig struct {
	FFmpeg          string   `yaml:"ffmpeg"`
	FFprobe         string   `yaml:"ffprobe"`
	SilkDecoder     string   `yaml:"silk_decoder"`
	Timeout         Duration `yaml:"timeout"`
	PrefetchWorkers int      `yaml:"prefetch_workers"`
}

type CacheConfig struct {
	Path           string     `yaml:"path"`
	MaxEntries     int        `yaml:"max_entries"`
	FlushThreshold int        `yaml:"flush_threshold"`
	Blob           BlobConfig `yaml:"blob"`
}

// BlobConfig places the cache snapshot in S3-compatible storage instead of
// the local file.
type BlobConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
}

type FetchConfig struct {
	UserAgent string   `yaml:"user_agent"`
	Timeout   Duration `yaml:"timeout"`
	RateLimit float64  `yaml:"rate_limit"`
	Burst     int      `yaml:"burst"`
	MaxBytes  ByteSize `yaml:"max_bytes"`
}

type NATSConfig struct {
	URL             string    `yaml:"url"`
	CredentialsFile string    `yaml:"credentials_file"`
	NKeySeedFile    string    `yaml:"nkey_seed_file"`
	TLS             TLSConfig `yaml:"tls"`
	ConnectionName  string    `yaml:"connection_name"`
	MaxReconnects   int       `yaml:"max_reconnects"`
	ReconnectWait   Duration  `yaml:"reconnect_wait"`
}

type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

type APIConfig struct {
	Enabled        bool                 `yaml:"enabled"`
	Listen         string               `yaml:"listen"`
	CodecResponder CodecResponderConfig `yaml:"codec_responder"`
}

// CodecResponderConfig exposes the configured decoder to other processes
// over NATS request/reply.
type CodecResponderConfig struct {
	Enabled bool   `yaml:"enabled"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Resource.Root == "" {
		return fmt.Errorf("resource.root is required")
	}

	switch c.Codec.Mode {
	case "", CodecModeNone:
	case CodecModeWebSocket:
		if c.Codec.URL == "" {
			return fmt.Errorf("codec.url is required for websocket mode")
		}
	case CodecModeNATS:
		if c.Codec.Subject == "" {
			return fmt.Errorf("codec.subject is required for nats mode")
		}
	default:
		return fmt.Errorf("codec.mode must be one of none, websocket, nats; got %q", c.Codec.Mode)
	}
	if c.Codec.Timeout <= 0 {
		return fmt.Errorf("codec.timeout must be > 0")
	}
	if c.Codec.Attempts < 1 {
		return fmt.Errorf("codec.attempts must be >= 1")
	}

	if c.Transcoder.PrefetchWorkers < 1 {
		return fmt.Errorf("transcoder.prefetch_workers must be >= 1")
	}

	if c.Cache.FlushThreshold < 1 {
		return fmt.Errorf("cache.flush_threshold must be >= 1")
	}
	if c.Cache.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must be >= 0")
	}
	if c.Cache.Blob.Enabled && c.Cache.Blob.Bucket == "" {
		return fmt.Errorf("cache.blob requires bucket")
	}

	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.RateLimit < 0 {
		return fmt.Errorf("fetch.rate_limit must be >= 0")
	}

	if c.NeedsNATS() && c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required when codec mode is nats or the codec responder is enabled")
	}

	if c.API.CodecResponder.Enabled {
		if c.API.CodecResponder.Subject == "" {
			return fmt.Errorf("api.codec_responder.subject is required")
		}
		if c.Codec.Mode == CodecModeNATS && c.Codec.Subject == c.API.CodecResponder.Subject {
			return fmt.Errorf("api.codec_responder.subject must differ from codec.subject")
		}
	}

	return nil
}

// NeedsNATS reports whether any enabled component talks to NATS.
func (c *Config) NeedsNATS() bool {
	return c.Codec.Mode == CodecModeNATS || c.API.CodecResponder.Enabled
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5m", "24h".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// ByteSize wraps int64 for YAML unmarshaling of strings like "256MB", "10GB".
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		var n int64
		if err2 := value.Decode(&n); err2 != nil {
			return err
		}
		*b = ByteSize(n)
		return nil
	}
	parsed, err := parseByteSize(s)
	if err != nil {
		return err
	}
	*b = ByteSize(parsed)
	return nil
}

func parseByteSize(s string) (int64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty byte size")
	}

	var multiplier int64 = 1
	numStr := s

	switch {
	case len(s) >= 2 && s[len(s)-2:] == "KB":
		multiplier = 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "MB":
		multiplier = 1024 * 1024
		numStr = s[:len(s)-2]
	case len(s) >= 2 && s[len(s)-2:] == "GB":
		multiplier = 1024 * 1024 * 1024
		numStr = s[:len(s)-2]
	case s[len(s)-1] == 'B':
		numStr = s[:len(s)-1]
	}

	var n int64
	_, err := fmt.Sscanf(numStr, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * multiplier, nil
}
