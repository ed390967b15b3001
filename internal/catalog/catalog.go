// Package catalog holds the schema rows media resolution depends on: emoji
// descriptors and groups, avatar URLs, big-image paths and the local emoji
// encryption key.
package catalog

import (
	"context"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/types"
)

// EmojiKeyCatalog is the EmojiInfo catalog whose md5 is the local emoji key.
const EmojiKeyCatalog = 153

// ServerIDPrefix marks big-image paths that were never downloaded.
const ServerIDPrefix = "SERVERID://"

// Catalog is read by the resolver during lookups. Missing rows are reported
// as empty values, not errors.
type Catalog interface {
	EmojiDescriptor(ctx context.Context, digest string) (types.EmojiDescriptor, bool, error)
	EmojiGroup(ctx context.Context, digest string) (string, error)
	AvatarURL(ctx context.Context, username string) (string, error)
	BigImagePath(ctx context.Context, msgSvrID string) (string, error)
	EmojiKey(ctx context.Context) (string, error)
	Ping() error
	Close() error
}

// Snapshot is the complete set of rows, as read from the message database.
type Snapshot struct {
	Emojis      map[string]types.EmojiDescriptor
	EmojiGroups map[string]string
	AvatarURLs  map[string]string
	BigImages   map[string]string
	EmojiKey    string
}

func NewSnapshot() *Snapshot {
	return &Snapshot{
		Emojis:      make(map[string]types.EmojiDescriptor),
		EmojiGroups: make(map[string]string),
		AvatarURLs:  make(map[string]string),
		BigImages:   make(map[string]string),
	}
}

// AddBigImage records path for msgSvrID unless it is a server placeholder.
func (s *Snapshot) AddBigImage(msgSvrID, path string) {
	if path == "" || strings.HasPrefix(path, ServerIDPrefix) {
		return
	}
	s.BigImages[msgSvrID] = path
}

// AddEmoji records d unless it carries no remote source.
func (s *Snapshot) AddEmoji(digest string, d types.EmojiDescriptor) {
	if !d.HasRemote() {
		return
	}
	s.Emojis[digest] = d
}

// MemCatalog serves a Snapshot from memory.
type MemCatalog struct {
	snap *Snapshot
}

func NewMemCatalog(snap *Snapshot) *MemCatalog {
	if snap == nil {
		snap = NewSnapshot()
	}
	return &MemCatalog{snap: snap}
}

func (m *MemCatalog) EmojiDescriptor(_ context.Context, digest string) (types.EmojiDescriptor, bool, error) {
	d, ok := m.snap.Emojis[digest]
	return d, ok, nil
}

func (m *MemCatalog) EmojiGroup(_ context.Context, digest string) (string, error) {
	return m.snap.EmojiGroups[digest], nil
}

func (m *MemCatalog) AvatarURL(_ context.Context, username string) (string, error) {
	return m.snap.AvatarURLs[username], nil
}

func (m *MemCatalog) BigImagePath(_ context.Context, msgSvrID string) (string, error) {
	return m.snap.BigImages[msgSvrID], nil
}

func (m *MemCatalog) EmojiKey(context.Context) (string, error) {
	return m.snap.EmojiKey, nil
}

func (m *MemCatalog) Ping() error  { return nil }
func (m *MemCatalog) Close() error { return nil }
