package codec

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATSTransport sends decode requests as NATS request/reply messages, for
// example to a RunCodecResponder instance. The connection is owned by the
// caller.
type NATSTransport struct {
	nc      *nats.Conn
	subject string
}

// NewNATSTransport creates a transport that requests on subject.
func NewNATSTransport(nc *nats.Conn, subject string) *NATSTransport {
	return &NATSTransport{nc: nc, subject: subject}
}

func (t *NATSTransport) RoundTrip(ctx context.Context, payload []byte) ([]byte, error) {
	msg, err := t.nc.RequestWithContext(ctx, t.subject, payload)
	if err != nil {
		return nil, fmt.Errorf("requesting decode on %s: %w", t.subject, err)
	}
	return msg.Data, nil
}

// Reconnect flushes the connection; the client library reconnects on its own.
func (t *NATSTransport) Reconnect(ctx context.Context) error {
	if t.nc.IsClosed() {
		return fmt.Errorf("nats connection closed")
	}
	return t.nc.FlushWithContext(ctx)
}

func (t *NATSTransport) Close() error {
	return nil
}
