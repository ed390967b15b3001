package resolve

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/block"
	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/tier"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// Avatar returns the avatar of username as JPEG.
func (r *Resolver) Avatar(ctx context.Context, username string) (types.MediaResult, error) {
	if username == "" {
		return types.NotFound(), fmt.Errorf("empty username: %w", types.ErrNotFound)
	}
	digest := content.DigestString(username)

	res, _, err := tier.New(types.KindAvatar, r.logger,
		tier.Step{Name: tier.BlockIndex, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.avatarFromBlocks(ctx, digest)
		}},
		tier.Step{Name: tier.DirScan, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.avatarFromDir(digest)
		}},
		tier.Step{Name: tier.Download, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.downloadAvatar(ctx, username, digest)
		}},
	).Run(ctx, username)
	return res, err
}

func (r *Resolver) avatarFromBlocks(ctx context.Context, digest string) (types.MediaResult, error) {
	if r.index == nil || !r.blocks.Available() {
		return types.NotFound(), nil
	}
	entries, err := r.index.Lookup(ctx, digest)
	if err != nil {
		return types.NotFound(), fmt.Errorf("avatar index lookup: %w", err)
	}
	if len(entries) == 0 {
		return types.NotFound(), nil
	}
	block.SortEntries(entries)

	var errs []error
	for _, e := range entries {
		data, err := r.blocks.ReadEntry(e)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out, err := toJPEG(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.FileName, err))
			continue
		}
		return jpegResult(out), nil
	}
	return types.NotFound(), errors.Join(errs...)
}

func (r *Resolver) avatarFromDir(digest string) (types.MediaResult, error) {
	dir, err := resource.ShardDir(r.layout.Dir(resource.DirAvatar), digest)
	if err != nil {
		return types.NotFound(), err
	}
	cands, err := resource.ListMatching(dir, func(name string) bool {
		return strings.Contains(name, digest)
	})
	if err != nil {
		return types.NotFound(), err
	}
	cands = resource.ExpandDirs(cands)
	block.SortByPriority(cands, func(c resource.Candidate) string { return c.Name })

	var errs []error
	for _, c := range cands {
		data, err := os.ReadFile(c.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var img image.Image
		if strings.HasSuffix(c.Name, ".bm") {
			img, err = decodeBM(data)
		} else {
			img, err = decodeImage(data)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
			continue
		}
		out, err := encodeJPEG(img)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return jpegResult(out), nil
	}
	return types.NotFound(), errors.Join(errs...)
}

// downloadAvatar fetches the recorded URL and persists the image into the
// avatar directory so the next lookup is local.
func (r *Resolver) downloadAvatar(ctx context.Context, username, digest string) (types.MediaResult, error) {
	if r.fetcher == nil {
		return types.NotFound(), nil
	}
	url, err := r.catalog.AvatarURL(ctx, username)
	if err != nil {
		return types.NotFound(), fmt.Errorf("avatar url lookup: %w", err)
	}
	if url == "" {
		return types.NotFound(), nil
	}

	r.logger.Info("requesting avatar", zap.String("username", username), zap.String("url", url))
	data, err := r.fetcher.FetchPlain(ctx, url)
	if err != nil {
		return types.NotFound(), err
	}
	img, err := decodeImage(data)
	if err != nil {
		return types.NotFound(), fmt.Errorf("downloaded avatar of %s: %w", username, err)
	}

	if err := r.saveAvatar(digest, img); err != nil {
		r.logger.Warn("persisting avatar failed", zap.String("username", username), zap.Error(err))
	}

	out, err := encodeJPEG(img)
	if err != nil {
		return types.NotFound(), err
	}
	return jpegResult(out), nil
}

func (r *Resolver) saveAvatar(digest string, img image.Image) error {
	path, err := r.layout.AvatarPath(digest)
	if err != nil {
		return err
	}
	data, err := encodePNG(img)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func jpegResult(data []byte) types.MediaResult {
	return types.MediaResult{Payload: data, Format: types.FormatJPEG}
}
