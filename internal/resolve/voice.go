package resolve

import (
	"context"
	"fmt"

	"github.com/gftdcojp/wxmedia/internal/tier"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/gftdcojp/wxmedia/internal/voice"
)

// Voice returns the clip stored for imgPath as MP3. A clip of the current
// prefetch batch is awaited instead of transcoded again.
func (r *Resolver) Voice(ctx context.Context, imgPath string) (types.MediaResult, error) {
	if !plainName(imgPath) {
		return types.NotFound(), fmt.Errorf("voice path %q: %w", imgPath, types.ErrNotFound)
	}
	task, prefetched := r.prefetch.Lookup(imgPath)

	res, _, err := tier.New(types.KindVoice, r.logger,
		tier.Step{Name: tier.Prefetch, Run: func(ctx context.Context) (types.MediaResult, error) {
			if !prefetched {
				return types.NotFound(), nil
			}
			return task.Wait(ctx)
		}},
		tier.Step{Name: tier.Transcode, Run: func(ctx context.Context) (types.MediaResult, error) {
			if prefetched {
				return types.NotFound(), nil
			}
			return r.transcodeVoice(ctx, imgPath)
		}},
	).Run(ctx, imgPath)
	return res, err
}

// PrefetchVoice starts transcoding every clip of paths in the background,
// replacing the previous batch.
func (r *Resolver) PrefetchVoice(paths []string) map[string]*voice.Task {
	return r.prefetch.Submit(paths)
}

func (r *Resolver) transcodeVoice(ctx context.Context, imgPath string) (types.MediaResult, error) {
	if !plainName(imgPath) {
		return types.NotFound(), fmt.Errorf("voice path %q: %w", imgPath, types.ErrNotFound)
	}
	if r.voice == nil {
		return types.NotFound(), fmt.Errorf("voice transcoder: %w", types.ErrUnavailable)
	}
	return r.voice.Transcode(ctx, r.layout.VoicePath(imgPath))
}
