package resolve

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/tier"
	"github.com/gftdcojp/wxmedia/internal/types"
)

// Video returns the location of a stored video, or of its poster frame when
// only that was kept. Neither is read into memory.
func (r *Resolver) Video(ctx context.Context, id string) (types.MediaResult, error) {
	if !plainName(id) {
		return types.NotFound(), fmt.Errorf("video id %q: %w", id, types.ErrNotFound)
	}
	video, poster := r.layout.VideoPaths(id)

	res, _, err := tier.New(types.KindVideo, r.logger,
		tier.Step{Name: tier.Video, Run: func(context.Context) (types.MediaResult, error) {
			return existing(video, types.FormatMP4), nil
		}},
		tier.Step{Name: tier.Poster, Run: func(context.Context) (types.MediaResult, error) {
			return existing(poster, types.FormatJPEG), nil
		}},
	).Run(ctx, id)
	return res, err
}

func existing(path string, f types.Format) types.MediaResult {
	if st, err := os.Stat(path); err != nil || st.IsDir() {
		return types.NotFound()
	}
	return types.MediaResult{Path: path, Format: f}
}

// plainName reports whether name is a single path element that cannot leave
// the directory it is joined to.
func plainName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}
