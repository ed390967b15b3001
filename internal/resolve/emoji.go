package resolve

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/content"
	"github.com/gftdcojp/wxmedia/internal/fetch"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/tier"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// emojiKeyLen is how many characters of the recorded key are used.
const emojiKeyLen = 16

// Emoji resolves an emoji by content digest: cache, local exact file,
// network, then any stored image sharing the digest prefix.
func (r *Resolver) Emoji(ctx context.Context, digest string) (types.MediaResult, error) {
	if !content.IsDigest(digest) {
		return types.NotFound(), fmt.Errorf("emoji digest %q: %w", digest, types.ErrNotFound)
	}

	var dirs []string
	res, _, err := tier.New(types.KindEmoji, r.logger,
		tier.Step{Name: tier.Cache, Run: func(context.Context) (types.MediaResult, error) {
			return r.emojiFromCache(digest), nil
		}},
		tier.Step{Name: tier.Local, Run: func(ctx context.Context) (types.MediaResult, error) {
			dirs = r.emojiDirs(ctx, digest)
			return r.emojiFromDisk(ctx, dirs, digest)
		}},
		tier.Step{Name: tier.Fetch, Run: func(ctx context.Context) (types.MediaResult, error) {
			return r.fetchEmoji(ctx, digest)
		}},
		tier.Step{Name: tier.Fallback, Run: func(context.Context) (types.MediaResult, error) {
			return r.emojiByPrefix(dirs, digest)
		}},
	).Run(ctx, digest)
	return res, err
}

func (r *Resolver) emojiFromCache(digest string) types.MediaResult {
	if r.cache == nil {
		return types.NotFound()
	}
	e, ok := r.cache.Get(digest)
	if !ok {
		return types.NotFound()
	}
	return types.MediaResult{Payload: e.Payload, Format: e.Format}
}

// emojiDirs lists the directories an emoji may be stored in: its group
// directory when the group is known, otherwise the emoji root and each of
// its immediate subdirectories.
func (r *Resolver) emojiDirs(ctx context.Context, digest string) []string {
	root := r.layout.Dir(resource.DirEmoji)
	group, err := r.catalog.EmojiGroup(ctx, digest)
	if err != nil {
		r.logger.Warn("emoji group lookup failed", zap.String("digest", digest), zap.Error(err))
	}
	if group != "" {
		return []string{filepath.Join(root, group)}
	}

	dirs := []string{root}
	subs, err := resource.ListMatching(root, func(string) bool { return true })
	if err != nil {
		r.logger.Debug("listing emoji root", zap.Error(err))
	}
	for _, c := range subs {
		if c.IsDir {
			dirs = append(dirs, c.Path)
		}
	}
	return dirs
}

func (r *Resolver) emojiFromDisk(ctx context.Context, dirs []string, digest string) (types.MediaResult, error) {
	var errs []error
	for _, dir := range dirs {
		path := filepath.Join(dir, digest)
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		res, err := r.decodeLocalEmoji(ctx, path, data, digest)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return res, nil
	}
	return types.NotFound(), errors.Join(errs...)
}

// decodeLocalEmoji accepts a stored emoji that is an image with the expected
// digest, a proprietary container, or either of those once its head is
// decrypted with the local emoji key.
func (r *Resolver) decodeLocalEmoji(ctx context.Context, path string, data []byte, digest string) (types.MediaResult, error) {
	if f := content.SniffFormat(data); f.IsImage() && content.Digest(data) == digest {
		return types.MediaResult{Payload: data, Format: f}, nil
	}
	if content.IsProprietaryImage(data) {
		return r.decodeProprietary(ctx, path, nil)
	}

	key, err := r.localEmojiKey(ctx)
	if err != nil {
		return types.NotFound(), err
	}
	plain, err := fetch.DecryptECBPrefix(data, key, fetch.ECBPrefixSize)
	if err != nil {
		return types.NotFound(), fmt.Errorf("decrypting %s: %w", filepath.Base(path), err)
	}
	if content.Digest(plain) == digest {
		return types.MediaResult{Payload: plain, Format: content.SniffFormat(plain)}, nil
	}
	if content.IsProprietaryImage(plain) {
		return r.decodeProprietary(ctx, path, plain)
	}
	return types.NotFound(), fmt.Errorf("decrypted %s: %w", filepath.Base(path), types.ErrIntegrityMismatch)
}

func (r *Resolver) decodeProprietary(ctx context.Context, path string, inline []byte) (types.MediaResult, error) {
	decoded, err := r.gateway.DecodeWithCache(ctx, path, inline)
	if err != nil {
		return types.NotFound(), err
	}
	return types.MediaResult{Payload: decoded, Format: content.SniffFormat(decoded)}, nil
}

// localEmojiKey returns the key for encrypted local files. Only a usable key
// is kept, so a failed catalog read is retried on the next lookup.
func (r *Resolver) localEmojiKey(ctx context.Context) ([]byte, error) {
	r.emojiKeyMu.Lock()
	defer r.emojiKeyMu.Unlock()
	if r.emojiKey != nil {
		return r.emojiKey, nil
	}

	key, err := r.catalog.EmojiKey(ctx)
	if err != nil {
		r.logger.Warn("reading emoji key failed", zap.Error(err))
		return nil, fmt.Errorf("emoji key: %w", errors.Join(types.ErrUnavailable, err))
	}
	if len(key) < emojiKeyLen {
		if key != "" {
			r.logger.Warn("emoji key too short", zap.Int("len", len(key)))
		}
		return nil, fmt.Errorf("emoji key: %w", types.ErrUnavailable)
	}
	r.emojiKey = []byte(key[:emojiKeyLen])
	return r.emojiKey, nil
}

// fetchEmoji downloads from the recorded remote sources. Only a result whose
// content was verified is cached.
func (r *Resolver) fetchEmoji(ctx context.Context, digest string) (types.MediaResult, error) {
	if r.fetcher == nil {
		return types.NotFound(), nil
	}
	desc, ok, err := r.catalog.EmojiDescriptor(ctx, digest)
	if err != nil {
		return types.NotFound(), fmt.Errorf("emoji descriptor lookup: %w", err)
	}
	if !ok || !desc.HasRemote() {
		return types.NotFound(), nil
	}

	out, err := r.fetcher.FetchVerified(ctx, digest, desc)
	if err != nil {
		return types.NotFound(), err
	}
	if out.Verified {
		if r.cache != nil {
			r.cache.Put(ctx, digest, out.Payload, out.Format)
		}
	} else {
		r.logger.Warn("returning unverified emoji without caching",
			zap.String("digest", digest),
			zap.String("channel", out.Channel),
		)
	}
	return types.MediaResult{Payload: out.Payload, Format: out.Format}, nil
}

// emojiByPrefix returns the first stored image whose name starts with the
// digest. Nothing found this way is cached.
func (r *Resolver) emojiByPrefix(dirs []string, digest string) (types.MediaResult, error) {
	for _, dir := range dirs {
		cands, err := resource.ListMatching(dir, func(name string) bool {
			return strings.HasPrefix(name, digest)
		})
		if err != nil {
			r.logger.Debug("emoji prefix scan failed", zap.String("dir", dir), zap.Error(err))
			continue
		}
		for _, c := range cands {
			if c.IsDir || !content.SniffFile(c.Path).IsImage() {
				continue
			}
			data, err := os.ReadFile(c.Path)
			if err != nil {
				continue
			}
			r.logger.Info("emoji resolved by prefix", zap.String("digest", digest), zap.String("file", c.Name))
			return types.MediaResult{Payload: data, Format: content.SniffFormat(data)}, nil
		}
	}
	return types.NotFound(), nil
}
