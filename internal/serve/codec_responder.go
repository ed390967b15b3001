package serve

import (
	"context"
	"fmt"

	"github.com/gftdcojp/wxmedia/internal/codec"
	"github.com/gftdcojp/wxmedia/internal/config"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Decoder turns a proprietary container into a standard image.
type Decoder interface {
	Decode(ctx context.Context, data []byte) ([]byte, error)
}

// RunCodecResponder answers decode requests on cfg.Subject with the decoded
// image, or codec.FailureSentinel when decoding fails, until ctx is done.
func RunCodecResponder(ctx context.Context, nc *nats.Conn, cfg config.CodecResponderConfig, dec Decoder, logger *zap.Logger) error {
	sub, err := nc.QueueSubscribe(cfg.Subject, cfg.Queue, func(msg *nats.Msg) {
		out, err := dec.Decode(ctx, msg.Data)
		if err != nil {
			logger.Debug("decode request failed", zap.Int("bytes", len(msg.Data)), zap.Error(err))
			out = codec.FailureSentinel
		}
		if err := msg.Respond(out); err != nil {
			logger.Warn("responding to decode request", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", cfg.Subject, err)
	}

	logger.Info("codec responder started", zap.String("subject", cfg.Subject), zap.String("queue", cfg.Queue))

	<-ctx.Done()
	sub.Unsubscribe()
	return nil
}
