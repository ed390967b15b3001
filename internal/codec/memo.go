package codec

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/metrics"
	"go.uber.org/zap"
)

// MemoSuffix names the decoded sibling of a source file.
const MemoSuffix = ".dec"

// MemoPath returns the decoded-sibling path for source: the extension of the
// base name, if any, is replaced by MemoSuffix.
func MemoPath(source string) string {
	ext := filepath.Ext(source)
	return strings.TrimSuffix(source, ext) + MemoSuffix
}

// DecodeWithCache returns the memoized decode of sourcePath when present and
// otherwise decodes inline (or the file contents when inline is nil),
// persisting the result to the sibling file. The memo is checked before
// service availability so earlier decodes keep working offline.
func (g *Gateway) DecodeWithCache(ctx context.Context, sourcePath string, inline []byte) ([]byte, error) {
	memo := MemoPath(sourcePath)
	if data, err := os.ReadFile(memo); err == nil {
		metrics.CodecRequests.WithLabelValues("memo").Inc()
		return data, nil
	} else if !errors.Is(err, fs.ErrNotExist) && g != nil {
		g.logger.Warn("reading decode memo", zap.String("path", memo), zap.Error(err))
	}

	if !g.Available() {
		return nil, g.unavailable()
	}

	data := inline
	if data == nil {
		var err error
		data, err = os.ReadFile(sourcePath)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", sourcePath, err)
		}
	}

	decoded, err := g.Decode(ctx, data)
	if err != nil {
		return nil, err
	}

	if err := os.WriteFile(memo, decoded, 0o644); err != nil {
		g.logger.Warn("writing decode memo", zap.String("path", memo), zap.Error(err))
	}
	return decoded, nil
}
