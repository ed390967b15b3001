package catalog

import "encoding/binary"

// Bucket names in BoltDB.
var (
	bucketSystem      = []byte("system")
	bucketEmojis      = []byte("emojis")
	bucketEmojiGroups = []byte("emoji_groups")
	bucketAvatarURLs  = []byte("avatar_urls")
	bucketBigImages   = []byte("big_images")
	keySchemaVersion  = []byte("schema_version")
	keyEmojiKey       = []byte("emoji_key")
	keyImportedAt     = []byte("imported_at")
)

const currentSchemaVersion = 1

var dataBuckets = [][]byte{bucketEmojis, bucketEmojiGroups, bucketAvatarURLs, bucketBigImages}

// emojiRecord is the gob form of a descriptor.
type emojiRecord struct {
	Catalog    int
	Name       string
	CDNURL     string
	EncryptURL string
	AESKeyHex  string
}

func uint64ToBytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func bytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}
