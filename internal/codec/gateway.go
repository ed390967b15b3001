// Package codec delegates decoding of the proprietary image container to an
// external decode service and memoizes results next to the source file.
package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// FailureSentinel is the literal reply the service sends when it cannot
// decode a payload.
var FailureSentinel = []byte("FAILED")

const (
	DefaultTimeout  = 30 * time.Second
	DefaultAttempts = 2
)

// Transport carries one request/response exchange with the decode service.
// Implementations need not be safe for concurrent use; the Gateway
// serializes calls.
type Transport interface {
	RoundTrip(ctx context.Context, payload []byte) ([]byte, error)
	Reconnect(ctx context.Context) error
	Close() error
}

// Options tunes a Gateway.
type Options struct {
	// Timeout bounds the wait for one response.
	Timeout time.Duration
	// Attempts is the total number of tries; a reconnect happens between them.
	Attempts int
}

// Gateway is the single entry point to the external decoder. At most one
// request is in flight per Gateway.
type Gateway struct {
	mu        sync.Mutex
	transport Transport
	opts      Options
	logger    *zap.Logger
	warnOnce  sync.Once
}

// NewGateway creates a gateway over t. A nil t yields a gateway that reports
// ErrUnavailable for every decode.
func NewGateway(t Transport, opts Options, logger *zap.Logger) *Gateway {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAttempts
	}
	return &Gateway{transport: t, opts: opts, logger: logger}
}

// Available reports whether a decode facility is configured.
func (g *Gateway) Available() bool {
	return g != nil && g.transport != nil
}

func (g *Gateway) unavailable() error {
	if g != nil {
		g.warnOnce.Do(func() {
			g.logger.Warn("proprietary image decoder is not configured; such images will be skipped")
		})
	}
	metrics.CodecRequests.WithLabelValues("unavailable").Inc()
	return fmt.Errorf("image decoder: %w", types.ErrUnavailable)
}

// Decode sends data to the service. A FailureSentinel reply is ErrFailed
// without retry; transport errors are retried once after a reconnect.
func (g *Gateway) Decode(ctx context.Context, data []byte) ([]byte, error) {
	if !g.Available() {
		return nil, g.unavailable()
	}
	if !content.IsProprietaryImage(data) {
		n := min(len(data), 20)
		return nil, fmt.Errorf("invalid container header %x: %w", data[:n], types.ErrUnsupportedFormat)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt < g.opts.Attempts; attempt++ {
		resp, err := g.roundTrip(ctx, data)
		if err == nil {
			if bytes.Equal(resp, FailureSentinel) {
				metrics.CodecRequests.WithLabelValues("failed").Inc()
				return nil, fmt.Errorf("decoder rejected payload: %w", types.ErrFailed)
			}
			metrics.CodecRequests.WithLabelValues("ok").Inc()
			metrics.CodecLatency.Observe(time.Since(start).Seconds())
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}

		g.logger.Warn("decode attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
		if attempt < g.opts.Attempts-1 {
			metrics.CodecRequests.WithLabelValues("retry").Inc()
			if rerr := g.transport.Reconnect(ctx); rerr != nil {
				g.logger.Warn("reconnecting to decoder failed", zap.Error(rerr))
			}
		}
	}

	metrics.CodecRequests.WithLabelValues("failed").Inc()
	return nil, fmt.Errorf("decoding after %d attempts: %w", g.opts.Attempts, errors.Join(types.ErrFailed, lastErr))
}

func (g *Gateway) roundTrip(ctx context.Context, data []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	resp, err := g.transport.RoundTrip(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(resp) == 0 {
		return nil, fmt.Errorf("empty response from decoder")
	}
	return resp, nil
}

// Close releases the transport.
func (g *Gateway) Close() error {
	if !g.Available() {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.transport.Close()
}

// DecodeFunc adapts an in-process decoder to Transport.
type DecodeFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f DecodeFunc) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

func (f DecodeFunc) Reconnect(context.Context) error { return nil }

func (f DecodeFunc) Close() error { return nil }
