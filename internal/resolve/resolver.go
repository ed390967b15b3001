// Package resolve finds and decodes the media referenced by a message, one
// ordered strategy chain per media kind.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gftdcojp/wxmedia/internal/block"
	"github.com/gftdcojp/wxmedia/internal/cache"
	"github.com/gftdcojp/wxmedia/internal/catalog"
	"github.com/gftdcojp/wxmedia/internal/codec"
	"github.com/gftdcojp/wxmedia/internal/fetch"
	"github.com/gftdcojp/wxmedia/internal/resource"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/gftdcojp/wxmedia/internal/voice"
	"go.uber.org/zap"
)

// ErrUnknownKind is returned by Resolve for a request with no resolver.
var ErrUnknownKind = errors.New("unknown media kind")

// Fetcher is the network side of avatar and emoji resolution.
type Fetcher interface {
	FetchPlain(ctx context.Context, url string) ([]byte, error)
	FetchVerified(ctx context.Context, digest string, desc types.EmojiDescriptor) (fetch.Outcome, error)
}

// Transcoder converts a stored voice clip.
type Transcoder interface {
	Transcode(ctx context.Context, path string) (types.MediaResult, error)
}

// Deps are the collaborators of a Resolver. Every field except Layout may
// be nil, disabling the strategies that need it.
type Deps struct {
	Layout          resource.Layout
	Blocks          *block.Reader
	Index           block.Index
	Gateway         *codec.Gateway
	Cache           *cache.Cache
	Fetcher         Fetcher
	Voice           Transcoder
	Catalog         catalog.Catalog
	PrefetchWorkers int
}

// Resolver is safe for concurrent use.
type Resolver struct {
	layout   resource.Layout
	blocks   *block.Reader
	index    block.Index
	gateway  *codec.Gateway
	cache    *cache.Cache
	fetcher  Fetcher
	voice    Transcoder
	catalog  catalog.Catalog
	prefetch *voice.Prefetcher
	logger   *zap.Logger

	emojiKeyMu sync.Mutex
	emojiKey   []byte
}

func New(d Deps, logger *zap.Logger) *Resolver {
	if d.Catalog == nil {
		d.Catalog = catalog.NewMemCatalog(nil)
	}
	if d.Blocks == nil {
		d.Blocks = block.NewReader(d.Layout.Dir(resource.DirSFS))
	}
	r := &Resolver{
		layout:  d.Layout,
		blocks:  d.Blocks,
		index:   d.Index,
		gateway: d.Gateway,
		cache:   d.Cache,
		fetcher: d.Fetcher,
		voice:   d.Voice,
		catalog: d.Catalog,
		logger:  logger,
	}
	r.prefetch = voice.NewPrefetcher(r.transcodeVoice, d.PrefetchWorkers, logger.Named("prefetch"))

	if missing := d.Layout.Check(); len(missing) > 0 {
		logger.Warn("resource directories missing; their media kinds will not resolve",
			zap.String("root", d.Layout.Root),
			zap.Strings("missing", missing),
		)
	}
	return r
}

// Resolve dispatches req to the resolver for its kind. A miss is the
// not-found result with a nil error.
func (r *Resolver) Resolve(ctx context.Context, req types.MediaRequest) (types.MediaResult, error) {
	switch req.Kind {
	case types.KindAvatar:
		return r.Avatar(ctx, req.PrimaryKey)
	case types.KindChatImage:
		names := append([]string{ImageName(req.PrimaryKey)}, req.AuxiliaryPaths...)
		return r.ChatImage(ctx, names)
	case types.KindVoice:
		return r.Voice(ctx, req.PrimaryKey)
	case types.KindEmoji:
		return r.Emoji(ctx, req.PrimaryKey)
	case types.KindVideo:
		return r.Video(ctx, req.PrimaryKey)
	}
	return types.NotFound(), fmt.Errorf("%w: %d", ErrUnknownKind, int(req.Kind))
}

// Status describes which strategies are usable.
type Status struct {
	Root         string   `json:"root"`
	MissingDirs  []string `json:"missing_dirs,omitempty"`
	BlockStore   bool     `json:"block_store"`
	BlockIndex   bool     `json:"block_index"`
	Codec        bool     `json:"codec"`
	Transcoder   bool     `json:"transcoder"`
	Fetcher      bool     `json:"fetcher"`
	CacheEntries int      `json:"cache_entries"`
}

func (r *Resolver) Status() Status {
	st := Status{
		Root:        r.layout.Root,
		MissingDirs: r.layout.Check(),
		BlockStore:  r.blocks.Available(),
		BlockIndex:  r.index != nil,
		Codec:       r.gateway.Available(),
		Transcoder:  r.voice != nil,
		Fetcher:     r.fetcher != nil,
	}
	if r.cache != nil {
		st.CacheEntries = r.cache.Len()
	}
	return st
}

// Close waits for running prefetches, flushes the cache and releases the
// codec connection.
func (r *Resolver) Close(ctx context.Context) error {
	r.prefetch.Wait()
	var errs []error
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.gateway.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing codec: %w", err))
	}
	return errors.Join(errs...)
}
