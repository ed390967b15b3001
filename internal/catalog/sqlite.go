package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Queries against an already decrypted message database.
const (
	queryBigImages   = "SELECT msgSvrId, bigImgPath FROM ImgInfo2"
	queryEmojiGroups = "SELECT md5, groupid FROM EmojiInfoDesc"
	queryEmojis      = "SELECT md5, catalog, name, cdnUrl, encrypturl, aeskey FROM EmojiInfo"
	queryAvatarURLs  = "SELECT username, reserved1 FROM img_flag"
	queryEmojiKey    = "SELECT md5 FROM EmojiInfo WHERE catalog = ? LIMIT 1"
)

// ReadSnapshot reads every table the resolver uses. A table that is missing
// or unreadable is logged and skipped so older databases still import.
func ReadSnapshot(ctx context.Context, db *sql.DB, logger *zap.Logger) (*Snapshot, error) {
	snap := NewSnapshot()

	steps := []struct {
		name string
		read func() error
	}{
		{"ImgInfo2", func() error {
			return scanPairs(ctx, db, queryBigImages, snap.AddBigImage)
		}},
		{"EmojiInfoDesc", func() error {
			return scanPairs(ctx, db, queryEmojiGroups, func(k, v string) {
				if v != "" {
					snap.EmojiGroups[k] = v
				}
			})
		}},
		{"EmojiInfo", func() error { return readEmojis(ctx, db, snap) }},
		{"img_flag", func() error {
			return scanPairs(ctx, db, queryAvatarURLs, func(k, v string) {
				if v != "" {
					snap.AvatarURLs[k] = v
				}
			})
		}},
	}

	read := 0
	for _, s := range steps {
		if err := s.read(); err != nil {
			logger.Warn("skipping table", zap.String("table", s.name), zap.Error(err))
			continue
		}
		read++
	}
	if read == 0 {
		return nil, fmt.Errorf("no media tables readable")
	}

	var key sql.NullString
	err := db.QueryRowContext(ctx, queryEmojiKey, EmojiKeyCatalog).Scan(&key)
	switch {
	case err == sql.ErrNoRows:
		logger.Info("no emoji encryption key in database")
	case err != nil:
		logger.Warn("reading emoji encryption key", zap.Error(err))
	default:
		snap.EmojiKey = key.String
	}

	return snap, nil
}

func scanPairs(ctx context.Context, db *sql.DB, query string, add func(k, v string)) error {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var k, v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return err
		}
		if k.Valid {
			add(k.String, v.String)
		}
	}
	return rows.Err()
}

func readEmojis(ctx context.Context, db *sql.DB, snap *Snapshot) error {
	rows, err := db.QueryContext(ctx, queryEmojis)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			md5                         sql.NullString
			catalog                     sql.NullInt64
			name, cdn, enc, aesKeyValue sql.NullString
		)
		if err := rows.Scan(&md5, &catalog, &name, &cdn, &enc, &aesKeyValue); err != nil {
			return err
		}
		if !md5.Valid {
			continue
		}
		snap.AddEmoji(md5.String, types.EmojiDescriptor{
			Catalog:    int(catalog.Int64),
			Name:       name.String,
			CDNURL:     cdn.String,
			EncryptURL: enc.String,
			AESKeyHex:  aesKeyValue.String,
		})
	}
	return rows.Err()
}

// ImportSQLite reads the database at dsn and replaces the contents of dst.
func ImportSQLite(ctx context.Context, dsn string, dst *BoltCatalog, logger *zap.Logger) (*Snapshot, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", dsn, err)
	}
	defer db.Close()

	snap, err := ReadSnapshot(ctx, db, logger)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dsn, err)
	}
	if err := dst.Import(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
