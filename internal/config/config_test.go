package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wxmedia.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
resource:
  root: "/data/MicroMsg/abc"
avatar:
  index_db: "/data/MicroMsg/abc/avatar.index"
codec:
  mode: websocket
  url: "127.0.0.1:9191"
  timeout: "10s"
cache:
  path: "/tmp/emoji.cache"
  flush_threshold: 20
fetch:
  max_bytes: "8MB"
transcoder:
  silk_decoder: "/usr/local/bin/silk_decoder"
  prefetch_workers: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Resource.Root != "/data/MicroMsg/abc" {
		t.Errorf("unexpected root: %s", cfg.Resource.Root)
	}
	if cfg.Codec.Mode != CodecModeWebSocket || cfg.Codec.URL != "127.0.0.1:9191" {
		t.Errorf("unexpected codec: %+v", cfg.Codec)
	}
	if cfg.Codec.Timeout.Duration() != 10*time.Second {
		t.Errorf("unexpected codec timeout: %s", cfg.Codec.Timeout.Duration())
	}
	// defaults survive partial sections
	if cfg.Codec.Attempts != 2 {
		t.Errorf("expected default attempts 2, got %d", cfg.Codec.Attempts)
	}
	if cfg.Transcoder.FFmpeg != "ffmpeg" {
		t.Errorf("expected default ffmpeg binary, got %q", cfg.Transcoder.FFmpeg)
	}
	if cfg.Transcoder.PrefetchWorkers != 4 {
		t.Errorf("unexpected prefetch workers: %d", cfg.Transcoder.PrefetchWorkers)
	}
	if cfg.Cache.FlushThreshold != 20 {
		t.Errorf("unexpected flush threshold: %d", cfg.Cache.FlushThreshold)
	}
	if int64(cfg.Fetch.MaxBytes) != 8*1024*1024 {
		t.Errorf("unexpected max_bytes: %d", cfg.Fetch.MaxBytes)
	}
}

func TestValidateRequiresRoot(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for missing resource.root")
	}
}

func TestValidateCodecModes(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*Config)
		ok    bool
	}{
		{"none", func(c *Config) {}, true},
		{"websocket without url", func(c *Config) { c.Codec.Mode = CodecModeWebSocket }, false},
		{"nats without subject", func(c *Config) { c.Codec.Mode = CodecModeNATS; c.NATS.URL = "nats://x" }, false},
		{"nats without url", func(c *Config) { c.Codec.Mode = CodecModeNATS; c.Codec.Subject = "s" }, false},
		{"nats ok", func(c *Config) { c.Codec.Mode = CodecModeNATS; c.Codec.Subject = "s"; c.NATS.URL = "nats://x" }, true},
		{"bogus", func(c *Config) { c.Codec.Mode = "grpc" }, false},
		{"zero attempts", func(c *Config) { c.Codec.Attempts = 0 }, false},
		{"blob without bucket", func(c *Config) { c.Cache.Blob.Enabled = true }, false},
		{"responder without nats", func(c *Config) { c.API.CodecResponder.Enabled = true }, false},
		{"responder loops to itself", func(c *Config) {
			c.NATS.URL = "nats://x"
			c.Codec.Mode = CodecModeNATS
			c.Codec.Subject = "dec"
			c.API.CodecResponder.Enabled = true
			c.API.CodecResponder.Subject = "dec"
		}, false},
		{"zero workers", func(c *Config) { c.Transcoder.PrefetchWorkers = 0 }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resource.Root = "/res"
			tc.apply(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestParseByteSizes(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
	}{
		{"1KB", 1024},
		{"256MB", 256 * 1024 * 1024},
		{"2GB", 2 * 1024 * 1024 * 1024},
		{"100B", 100},
		{"42", 42},
	}
	for _, tt := range tests {
		got, err := parseByteSize(tt.input)
		if err != nil {
			t.Errorf("parseByteSize(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("parseByteSize(%q) = %d, want %d", tt.input, got, tt.expected)
		}
	}
	if _, err := parseByteSize(""); err == nil {
		t.Error("expected error for empty size")
	}
}
