// Package voice turns stored voice clips into mp3 with a duration, running
// the external decoders out of process.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/metrics"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

var silkLength = regexp.MustCompile(`File length\s*:\s*([0-9.]+)\s*ms`)

// ParseSilkDuration extracts the clip length the speech decoder prints.
func ParseSilkDuration(stdout string) (int64, error) {
	m := silkLength.FindStringSubmatch(stdout)
	if m == nil {
		return 0, fmt.Errorf("no file length in decoder output")
	}
	ms, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("parsing decoder length %q: %w", m[1], err)
	}
	return int64(ms + 0.5), nil
}

type Options struct {
	// Timeout bounds one whole transcode.
	Timeout time.Duration
	// TempDir is the parent of the per-call scratch directories.
	TempDir string
}

// Pipeline sniffs a clip and runs one of the two conversion branches.
type Pipeline struct {
	transcoder Transcoder
	speech     SpeechDecoder
	prober     Prober
	opts       Options
	logger     *zap.Logger

	warnProbe       sync.Once
	warnUnavailable sync.Once
}

// NewPipeline creates a pipeline. speech and prober may be nil: SILK clips
// then fail as unavailable, and durations fall back to decoder output.
func NewPipeline(t Transcoder, speech SpeechDecoder, prober Prober, opts Options, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		transcoder: t,
		speech:     speech,
		prober:     prober,
		opts:       opts,
		logger:     logger,
	}
}

// Transcode converts the clip at path. The scratch directory is removed on
// every return path.
func (p *Pipeline) Transcode(ctx context.Context, path string) (types.MediaResult, error) {
	header, err := content.ReadHeader(path, content.AudioHeaderSize)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return types.NotFound(), fmt.Errorf("voice clip %s: %w", path, types.ErrNotFound)
		}
		return types.NotFound(), fmt.Errorf("reading voice clip: %w", err)
	}

	container := content.SniffAudio(header)
	if container == content.AudioUnknown {
		metrics.TranscodeRequests.WithLabelValues(container.String(), "unsupported").Inc()
		return types.NotFound(), fmt.Errorf("voice clip %s header %q: %w", path, header, types.ErrUnsupportedFormat)
	}
	if p.transcoder == nil {
		metrics.TranscodeRequests.WithLabelValues(container.String(), "unavailable").Inc()
		err := fmt.Errorf("audio transcoder: %w", types.ErrUnavailable)
		p.unavailable(err)
		return types.NotFound(), err
	}

	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	scratch, err := os.MkdirTemp(p.opts.TempDir, "wxvoice-*")
	if err != nil {
		return types.NotFound(), fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	start := time.Now()
	base := strings.TrimSuffix(filepath.Base(path), ".amr")
	out := filepath.Join(scratch, base+".mp3")

	var decoderOutput string
	switch container {
	case content.AudioAMR:
		err = p.transcoder.FromContainer(ctx, path, out)
	case content.AudioSILK:
		decoderOutput, err = p.decodeSpeech(ctx, path, filepath.Join(scratch, base+".raw"), out)
	}
	if errors.Is(err, types.ErrUnavailable) {
		metrics.TranscodeRequests.WithLabelValues(container.String(), "unavailable").Inc()
		p.unavailable(err)
		return types.NotFound(), fmt.Errorf("transcoding %s: %w", path, err)
	}
	if err != nil {
		metrics.TranscodeRequests.WithLabelValues(container.String(), "failed").Inc()
		return types.NotFound(), fmt.Errorf("transcoding %s: %w", path, err)
	}

	payload, err := os.ReadFile(out)
	if err != nil {
		metrics.TranscodeRequests.WithLabelValues(container.String(), "failed").Inc()
		return types.NotFound(), fmt.Errorf("reading transcoded output: %w", errors.Join(types.ErrFailed, err))
	}

	metrics.TranscodeRequests.WithLabelValues(container.String(), "ok").Inc()
	metrics.TranscodeDuration.WithLabelValues(container.String()).Observe(time.Since(start).Seconds())

	return types.MediaResult{
		Payload:    payload,
		Format:     types.FormatMP3,
		DurationMS: p.duration(ctx, out, container, decoderOutput),
	}, nil
}

func (p *Pipeline) decodeSpeech(ctx context.Context, in, raw, out string) (string, error) {
	if p.speech == nil {
		return "", fmt.Errorf("speech decoder not configured: %w", types.ErrUnavailable)
	}
	stdout, err := p.speech.Decode(ctx, in, raw)
	if err != nil {
		return "", err
	}
	if err := p.transcoder.FromPCM(ctx, raw, out); err != nil {
		return "", err
	}
	return stdout, nil
}

// unavailable warns the first time a missing tool stops a transcode. Later
// misses are left to the caller's debug logging.
func (p *Pipeline) unavailable(err error) {
	p.warnUnavailable.Do(func() {
		p.logger.Warn("voice transcoding unavailable; clips will not be converted", zap.Error(err))
	})
}

// duration prefers container metadata; decoder output is the fallback.
func (p *Pipeline) duration(ctx context.Context, out string, container content.AudioContainer, decoderOutput string) int64 {
	if p.prober != nil {
		ms, err := p.prober.DurationMS(ctx, out)
		if err == nil {
			return ms
		}
		p.logger.Warn("probing duration failed", zap.String("path", out), zap.Error(err))
	} else {
		p.warnProbe.Do(func() {
			p.logger.Warn("duration prober is not configured; falling back to decoder output")
		})
	}

	if container == content.AudioSILK {
		ms, err := ParseSilkDuration(decoderOutput)
		if err == nil {
			return ms
		}
		p.logger.Warn("no duration available", zap.Error(err))
	}
	return 0
}
