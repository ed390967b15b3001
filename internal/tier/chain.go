// Package tier runs an ordered list of lookup strategies, hottest first,
// stopping at the first one that finds the item.
package tier

import (
	"context"
	"errors"
	"time"

	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// Tier names shared by the resolvers.
const (
	Cache      = "cache"
	BlockIndex = "block_index"
	DirScan    = "dir_scan"
	Local      = "local"
	Fetch      = "fetch"
	Fallback   = "fallback"
	Download   = "download"
	Prefetch   = "prefetch"
	Transcode  = "transcode"
	Big        = "big"
	Thumbnail  = "thumbnail"
	Video      = "video"
	Poster     = "poster"
)

// Step is one strategy. A step that does not apply returns the not-found
// result with a nil error.
type Step struct {
	Name string
	Run  func(ctx context.Context) (types.MediaResult, error)
}

// Chain is the strategy list for one lookup.
type Chain struct {
	kind   types.Kind
	steps  []Step
	logger *zap.Logger
}

func New(kind types.Kind, logger *zap.Logger, steps ...Step) *Chain {
	return &Chain{kind: kind, steps: steps, logger: logger}
}

// Run tries each step in order. Step errors are recorded and treated as a
// miss; only cancellation of ctx stops the chain early. The name of the step
// that produced the result is returned with it.
func (c *Chain) Run(ctx context.Context, key string) (types.MediaResult, string, error) {
	kind := c.kind.String()
	start := time.Now()
	defer func() {
		metrics.ResolveLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	for _, s := range c.steps {
		if err := ctx.Err(); err != nil {
			metrics.ResolveRequests.WithLabelValues(kind, "canceled").Inc()
			return types.NotFound(), "", err
		}

		stepStart := time.Now()
		res, err := s.Run(ctx)
		metrics.TierLatency.WithLabelValues(kind, s.Name).Observe(time.Since(stepStart).Seconds())

		if err == nil && res.Found() {
			metrics.TierAttempts.WithLabelValues(kind, s.Name, "hit").Inc()
			metrics.ResolveRequests.WithLabelValues(kind, "found").Inc()
			c.logger.Debug("resolved", zap.String("kind", kind), zap.String("key", key), zap.String("tier", s.Name))
			return res, s.Name, nil
		}

		outcome := classify(err)
		metrics.TierAttempts.WithLabelValues(kind, s.Name, outcome).Inc()
		switch outcome {
		case "miss", "unavailable":
			c.logger.Debug("tier miss",
				zap.String("kind", kind),
				zap.String("key", key),
				zap.String("tier", s.Name),
				zap.Error(err),
			)
		default:
			c.logger.Warn("tier failed",
				zap.String("kind", kind),
				zap.String("key", key),
				zap.String("tier", s.Name),
				zap.String("outcome", outcome),
				zap.Error(err),
			)
		}
	}

	metrics.ResolveRequests.WithLabelValues(kind, "not_found").Inc()
	c.logger.Info("media not found", zap.String("kind", kind), zap.String("key", key))
	return types.NotFound(), "", nil
}

func classify(err error) string {
	switch {
	case err == nil, errors.Is(err, types.ErrNotFound):
		return "miss"
	case errors.Is(err, types.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, types.ErrIntegrityMismatch):
		return "mismatch"
	case errors.Is(err, types.ErrUnsupportedFormat):
		return "unsupported"
	default:
		return "failed"
	}
}
