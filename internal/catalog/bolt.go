package catalog

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"time"

	"github.com/gftdcojp/wxmedia/internal/types"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

// BoltCatalog persists a Snapshot in BoltDB so the message database only
// has to be read once.
type BoltCatalog struct {
	db     *bbolt.DB
	logger *zap.Logger
}

// Stats counts the rows held by a catalog.
type Stats struct {
	Emojis      int       `json:"emojis"`
	EmojiGroups int       `json:"emoji_groups"`
	AvatarURLs  int       `json:"avatar_urls"`
	BigImages   int       `json:"big_images"`
	HasEmojiKey bool      `json:"has_emoji_key"`
	ImportedAt  time.Time `json:"imported_at"`
}

// OpenBolt opens or creates the catalog at path.
func OpenBolt(path string, noSync bool, logger *zap.Logger) (*BoltCatalog, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second, NoSync: noSync})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	c := &BoltCatalog{db: db, logger: logger}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *BoltCatalog) initSchema() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		sys, err := tx.CreateBucketIfNotExists(bucketSystem)
		if err != nil {
			return err
		}
		if v := sys.Get(keySchemaVersion); v != nil {
			if got := bytesToUint64(v); got > currentSchemaVersion {
				return fmt.Errorf("catalog schema v%d is newer than supported v%d", got, currentSchemaVersion)
			}
		} else if err := sys.Put(keySchemaVersion, uint64ToBytes(currentSchemaVersion)); err != nil {
			return err
		}
		for _, name := range dataBuckets {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
}

// Import replaces every row with the contents of snap in one transaction.
func (c *BoltCatalog) Import(_ context.Context, snap *Snapshot) error {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range dataBuckets {
			if err := tx.DeleteBucket(name); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}

		emojis := tx.Bucket(bucketEmojis)
		for digest, d := range snap.Emojis {
			data, err := encodeEmoji(d)
			if err != nil {
				return fmt.Errorf("encoding emoji %s: %w", digest, err)
			}
			if err := emojis.Put([]byte(digest), data); err != nil {
				return err
			}
		}
		for name, m := range map[string]map[string]string{
			string(bucketEmojiGroups): snap.EmojiGroups,
			string(bucketAvatarURLs):  snap.AvatarURLs,
			string(bucketBigImages):   snap.BigImages,
		} {
			b := tx.Bucket([]byte(name))
			for k, v := range m {
				if err := b.Put([]byte(k), []byte(v)); err != nil {
					return err
				}
			}
		}

		sys := tx.Bucket(bucketSystem)
		if err := sys.Put(keyEmojiKey, []byte(snap.EmojiKey)); err != nil {
			return err
		}
		return sys.Put(keyImportedAt, uint64ToBytes(uint64(time.Now().Unix())))
	})
	if err != nil {
		return fmt.Errorf("importing catalog: %w", err)
	}

	c.logger.Info("catalog imported",
		zap.Int("emojis", len(snap.Emojis)),
		zap.Int("emoji_groups", len(snap.EmojiGroups)),
		zap.Int("avatar_urls", len(snap.AvatarURLs)),
		zap.Int("big_images", len(snap.BigImages)),
	)
	return nil
}

func encodeEmoji(d types.EmojiDescriptor) ([]byte, error) {
	var buf bytes.Buffer
	rec := emojiRecord(d)
	if err := gob.NewEncoder(&buf).Encode(&rec); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEmoji(data []byte) (types.EmojiDescriptor, error) {
	var rec emojiRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return types.EmojiDescriptor{}, err
	}
	return types.EmojiDescriptor(rec), nil
}

func (c *BoltCatalog) EmojiDescriptor(_ context.Context, digest string) (types.EmojiDescriptor, bool, error) {
	var d types.EmojiDescriptor
	var found bool
	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketEmojis).Get([]byte(digest))
		if data == nil {
			return nil
		}
		var err error
		d, err = decodeEmoji(data)
		found = err == nil
		return err
	})
	if err != nil {
		return types.EmojiDescriptor{}, false, fmt.Errorf("reading emoji %s: %w", digest, err)
	}
	return d, found, nil
}

func (c *BoltCatalog) get(bucket []byte, key string) (string, error) {
	var v string
	err := c.db.View(func(tx *bbolt.Tx) error {
		v = string(tx.Bucket(bucket).Get([]byte(key)))
		return nil
	})
	return v, err
}

func (c *BoltCatalog) EmojiGroup(_ context.Context, digest string) (string, error) {
	return c.get(bucketEmojiGroups, digest)
}

func (c *BoltCatalog) AvatarURL(_ context.Context, username string) (string, error) {
	return c.get(bucketAvatarURLs, username)
}

func (c *BoltCatalog) BigImagePath(_ context.Context, msgSvrID string) (string, error) {
	return c.get(bucketBigImages, msgSvrID)
}

func (c *BoltCatalog) EmojiKey(context.Context) (string, error) {
	return c.get(bucketSystem, string(keyEmojiKey))
}

// Stats returns row counts.
func (c *BoltCatalog) Stats() (Stats, error) {
	var st Stats
	err := c.db.View(func(tx *bbolt.Tx) error {
		st.Emojis = tx.Bucket(bucketEmojis).Stats().KeyN
		st.EmojiGroups = tx.Bucket(bucketEmojiGroups).Stats().KeyN
		st.AvatarURLs = tx.Bucket(bucketAvatarURLs).Stats().KeyN
		st.BigImages = tx.Bucket(bucketBigImages).Stats().KeyN
		sys := tx.Bucket(bucketSystem)
		st.HasEmojiKey = len(sys.Get(keyEmojiKey)) > 0
		if v := sys.Get(keyImportedAt); v != nil {
			st.ImportedAt = time.Unix(int64(bytesToUint64(v)), 0).UTC()
		}
		return nil
	})
	return st, err
}

func (c *BoltCatalog) Ping() error {
	return c.db.View(func(tx *bbolt.Tx) error {
		return nil
	})
}

func (c *BoltCatalog) Close() error {
	return c.db.Close()
}
