package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strconv"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/types"
)

// Transcoder produces the standard audio container.
type Transcoder interface {
	// FromContainer transcodes a standard speech container file.
	FromContainer(ctx context.Context, in, out string) error
	// FromPCM transcodes headerless 16-bit little-endian mono PCM.
	FromPCM(ctx context.Context, raw, out string) error
}

// SpeechDecoder decodes the proprietary speech codec to raw PCM and returns
// whatever the decoder printed.
type SpeechDecoder interface {
	Decode(ctx context.Context, in, rawOut string) (string, error)
}

// Prober reads the duration of a finished container from its metadata.
type Prober interface {
	DurationMS(ctx context.Context, path string) (int64, error)
}

// Fixed codec parameters of the two branches.
const (
	ContainerSampleRate = 16000
	PCMSampleRate       = 24000
	Channels            = 1
)

// FFmpeg runs the ffmpeg binary at Path.
type FFmpeg struct {
	Path string
}

func (f FFmpeg) FromContainer(ctx context.Context, in, out string) error {
	_, err := run(ctx, f.Path,
		"-i", in,
		"-acodec", "libmp3lame",
		"-ar", strconv.Itoa(ContainerSampleRate),
		"-ac", strconv.Itoa(Channels),
		"-y", out,
	)
	return err
}

func (f FFmpeg) FromPCM(ctx context.Context, raw, out string) error {
	_, err := run(ctx, f.Path,
		"-f", "s16le",
		"-ar", strconv.Itoa(PCMSampleRate),
		"-ac", strconv.Itoa(Channels),
		"-i", raw,
		"-acodec", "libmp3lame",
		"-y", out,
	)
	return err
}

// FFprobe runs the ffprobe binary at Path.
type FFprobe struct {
	Path string
}

func (f FFprobe) DurationMS(ctx context.Context, path string) (int64, error) {
	out, err := run(ctx, f.Path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(out), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing probed duration %q: %w", strings.TrimSpace(out), err)
	}
	return int64(secs*1000 + 0.5), nil
}

// SilkDecoder runs the speech decoder binary at Path as "<bin> in out".
type SilkDecoder struct {
	Path string
}

func (s SilkDecoder) Decode(ctx context.Context, in, rawOut string) (string, error) {
	return run(ctx, s.Path, in, rawOut)
}

func run(ctx context.Context, bin string, args ...string) (string, error) {
	if bin == "" {
		return "", fmt.Errorf("no binary configured: %w", types.ErrUnavailable)
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("running %s: %w: %v", bin, types.ErrUnavailable, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return stdout.String(), fmt.Errorf("%s exited: %v: %s: %w", bin, err, msg, types.ErrFailed)
	}
	return stdout.String(), nil
}
