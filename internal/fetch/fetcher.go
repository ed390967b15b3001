// Package fetch downloads remote media, decrypts the encrypted channel and
// checks plaintext downloads against the expected digest.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Linux; Android 10) wxmedia"
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 32 << 20
)

// Channel labels for metrics and outcomes.
const (
	ChannelPlain     = "plain"
	ChannelCDN       = "cdn"
	ChannelEncrypted = "encrypted"
)

type Options struct {
	UserAgent string
	Timeout   time.Duration
	// RateLimit is requests per second across all hosts; zero disables pacing.
	RateLimit float64
	Burst     int
	MaxBytes  int64
}

// Fetcher performs paced HTTP GETs with a fixed client identity.
type Fetcher struct {
	client    *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBytes  int64
	logger    *zap.Logger
}

// New creates a Fetcher. A nil client gets a default one bounded by
// opts.Timeout.
func New(client *http.Client, opts Options, logger *zap.Logger) *Fetcher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &Fetcher{
		client:    client,
		limiter:   limiter,
		userAgent: opts.UserAgent,
		maxBytes:  opts.MaxBytes,
		logger:    logger,
	}
}

// FetchPlain downloads url.
func (f *Fetcher) FetchPlain(ctx context.Context, url string) ([]byte, error) {
	return f.get(ctx, ChannelPlain, url)
}

// FetchEncrypted downloads url and decrypts it with DecryptCBC.
func (f *Fetcher) FetchEncrypted(ctx context.Context, url, aesKeyHex string) ([]byte, error) {
	return f.fetchEncrypted(ctx, ChannelEncrypted, url, aesKeyHex)
}

func (f *Fetcher) fetchEncrypted(ctx context.Context, channel, url, aesKeyHex string) ([]byte, error) {
	buf, err := f.get(ctx, channel, url)
	if err != nil {
		return nil, err
	}
	plain, err := DecryptCBC(buf, aesKeyHex)
	if err != nil {
		metrics.FetchRequests.WithLabelValues(channel, "decrypt_failed").Inc()
		return nil, fmt.Errorf("decrypting %s: %w", url, err)
	}
	return plain, nil
}

func (f *Fetcher) get(ctx context.Context, channel, url string) ([]byte, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for fetch slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.FetchRequests.WithLabelValues(channel, "error").Inc()
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.FetchRequests.WithLabelValues(channel, "error").Inc()
		return nil, fmt.Errorf("fetching %s: %w", url, errors.Join(types.ErrFailed, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		metrics.FetchRequests.WithLabelValues(channel, "not_found").Inc()
		return nil, fmt.Errorf("fetching %s: status %d: %w", url, resp.StatusCode, types.ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		metrics.FetchRequests.WithLabelValues(channel, "error").Inc()
		return nil, fmt.Errorf("fetching %s: status %d: %w", url, resp.StatusCode, types.ErrFailed)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		metrics.FetchRequests.WithLabelValues(channel, "error").Inc()
		return nil, fmt.Errorf("reading %s: %w", url, errors.Join(types.ErrFailed, err))
	}
	if int64(len(data)) > f.maxBytes {
		metrics.FetchRequests.WithLabelValues(channel, "too_large").Inc()
		return nil, fmt.Errorf("response from %s exceeds %d bytes: %w", url, f.maxBytes, types.ErrFailed)
	}
	if len(data) == 0 {
		metrics.FetchRequests.WithLabelValues(channel, "empty").Inc()
		return nil, fmt.Errorf("empty response from %s: %w", url, types.ErrFailed)
	}

	metrics.FetchRequests.WithLabelValues(channel, "ok").Inc()
	metrics.FetchBytes.WithLabelValues(channel).Add(float64(len(data)))
	return data, nil
}

// Outcome is the result of FetchVerified. Only Verified outcomes may be
// cached.
type Outcome struct {
	Payload  []byte
	Format   types.Format
	Verified bool
	Channel  string
}

// FetchVerified tries the plaintext CDN URL, accepting it only when its
// digest equals digest, then the encrypted URL, which is trusted once it
// decrypts. A CDN download that failed verification but is still a
// recognizable image is returned unverified when the encrypted channel
// yields nothing.
func (f *Fetcher) FetchVerified(ctx context.Context, digest string, desc types.EmojiDescriptor) (Outcome, error) {
	if !desc.HasRemote() {
		return Outcome{}, fmt.Errorf("no remote source for %s: %w", digest, types.ErrNotFound)
	}

	var bestEffort *Outcome
	var errs []error

	if desc.CDNURL != "" {
		f.logger.Info("requesting media from cdn", zap.String("digest", digest), zap.String("url", desc.CDNURL))
		data, err := f.get(ctx, ChannelCDN, desc.CDNURL)
		if err != nil {
			errs = append(errs, err)
		} else {
			out := Outcome{Payload: data, Format: content.SniffFormat(data), Channel: ChannelCDN}
			if content.Digest(data) == digest {
				out.Verified = true
				return out, nil
			}
			metrics.FetchRequests.WithLabelValues(ChannelCDN, "mismatch").Inc()
			errs = append(errs, fmt.Errorf("cdn payload for %s: %w", digest, types.ErrIntegrityMismatch))
			f.logger.Warn("cdn payload digest mismatch",
				zap.String("digest", digest),
				zap.String("got", content.Digest(data)),
			)
			if out.Format.IsImage() {
				bestEffort = &out
			}
		}
	}

	if desc.EncryptURL != "" {
		f.logger.Info("requesting encrypted media", zap.String("digest", digest), zap.String("url", desc.EncryptURL))
		data, err := f.fetchEncrypted(ctx, ChannelEncrypted, desc.EncryptURL, desc.AESKeyHex)
		if err != nil {
			errs = append(errs, err)
		} else {
			return Outcome{
				Payload:  data,
				Format:   content.SniffFormat(data),
				Verified: true,
				Channel:  ChannelEncrypted,
			}, nil
		}
	}

	if bestEffort != nil {
		return *bestEffort, nil
	}
	return Outcome{}, errors.Join(errs...)
}
