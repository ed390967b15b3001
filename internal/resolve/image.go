package resolve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/codec"
	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/tier"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// ImageName strips the location prefix of a stored image path, keeping the
// part after the last underscore.
func ImageName(imgPath string) string {
	if i := strings.LastIndex(imgPath, "_"); i >= 0 {
		return imgPath[i+1:]
	}
	return imgPath
}

// ImageForMessage resolves the image of a message from its stored path and
// server id, adding the recorded big-image path as a candidate.
func (r *Resolver) ImageForMessage(ctx context.Context, imgPath, msgSvrID string) (types.MediaResult, error) {
	names := []string{ImageName(imgPath)}
	if msgSvrID != "" {
		big, err := r.catalog.BigImagePath(ctx, msgSvrID)
		if err != nil {
			r.logger.Warn("big image lookup failed", zap.String("msg_svr_id", msgSvrID), zap.Error(err))
		} else if big != "" {
			names = append(names, big)
		}
	}
	return r.ChatImage(ctx, names)
}

// imageFiles is the pick among same-named candidates.
type imageFiles struct {
	big, thumbnail string
}

// isThumbnail matches the thumbnail marker unless the name carries the
// high-definition suffix.
func isThumbnail(path string) bool {
	return strings.HasPrefix(filepath.Base(path), "th_") && !strings.HasSuffix(path, "hd")
}

// pickImages orders cands ascending by size. The largest is the big
// image and the smallest thumbnail is the thumbnail. A lone candidate is
// whichever of the two its name says it is.
func pickImages(cands []resource.Candidate) imageFiles {
	if len(cands) == 0 {
		return imageFiles{}
	}
	resource.SortBySize(cands)
	if len(cands) == 1 {
		if isThumbnail(cands[0].Path) {
			return imageFiles{thumbnail: cands[0].Path}
		}
		return imageFiles{big: cands[0].Path}
	}

	files := imageFiles{big: cands[len(cands)-1].Path}
	for _, c := range cands {
		if isThumbnail(c.Path) {
			files.thumbnail = c.Path
			break
		}
	}
	return files
}

func (r *Resolver) imageCandidates(names []string) []resource.Candidate {
	for _, dirName := range []string{resource.DirImage2, resource.DirImage} {
		base := r.layout.Dir(dirName)
		var cands []resource.Candidate
		for _, name := range names {
			dir, err := resource.ShardDir(base, name)
			if err != nil {
				continue
			}
			found, err := resource.ListMatching(dir, func(n string) bool {
				return strings.Contains(n, name)
			})
			if err != nil {
				r.logger.Debug("image dir scan failed", zap.String("dir", dir), zap.Error(err))
				continue
			}
			for _, c := range found {
				if !c.IsDir && c.Size > 0 && !strings.HasSuffix(c.Name, codec.MemoSuffix) {
					cands = append(cands, c)
				}
			}
		}
		if len(cands) > 0 {
			return cands
		}
	}
	return nil
}

// ChatImage resolves the first usable of names, big version preferred, and
// returns it as JPEG.
func (r *Resolver) ChatImage(ctx context.Context, names []string) (types.MediaResult, error) {
	var filtered []string
	for _, n := range names {
		if n != "" {
			filtered = append(filtered, n)
		}
	}
	if len(filtered) == 0 {
		return types.NotFound(), nil
	}

	files := pickImages(r.imageCandidates(filtered))
	if files.big != "" && files.thumbnail == "" {
		r.logger.Debug("found big image but no thumbnail", zap.String("name", filtered[0]))
	}

	res, _, err := tier.New(types.KindChatImage, r.logger,
		tier.Step{Name: tier.Big, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.imageAsJPEG(ctx, files.big)
		}},
		tier.Step{Name: tier.Thumbnail, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.imageAsJPEG(ctx, files.thumbnail)
		}},
	).Run(ctx, filtered[0])
	return res, err
}

// imageAsJPEG returns true JPEG files untouched and re-encodes everything
// else, decoding the proprietary container first.
func (r *Resolver) imageAsJPEG(ctx context.Context, path string) (types.MediaResult, error) {
	if path == "" {
		return types.NotFound(), nil
	}
	if strings.HasSuffix(path, "jpg") && content.SniffFile(path) == types.FormatJPEG {
		data, err := os.ReadFile(path)
		if err != nil {
			return types.NotFound(), err
		}
		return jpegResult(data), nil
	}

	var data []byte
	var err error
	if content.IsProprietaryFile(path) {
		data, err = r.gateway.DecodeWithCache(ctx, path, nil)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return types.NotFound(), err
	}

	if content.SniffFormat(data) != types.FormatJPEG {
		data, err = toJPEG(data)
		if err != nil {
			return types.NotFound(), fmt.Errorf("converting %s: %w", filepath.Base(path), err)
		}
	}
	return jpegResult(data), nil
}
