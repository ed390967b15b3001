package block

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteIndex reads the Index_avatar table the app keeps next to its shards.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLiteIndex opens the index database at path read-only.
func OpenSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening avatar index: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening avatar index: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// NewSQLiteIndex wraps an already-open database.
func NewSQLiteIndex(db *sql.DB) *SQLiteIndex {
	return &SQLiteIndex{db: db}
}

func (s *SQLiteIndex) Lookup(ctx context.Context, id string) ([]IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT FileName, Offset, Size FROM Index_avatar WHERE instr(FileName, ?) > 0`, id)
	if err != nil {
		return nil, fmt.Errorf("querying avatar index: %w", err)
	}
	defer rows.Close()

	var out []IndexEntry
	for rows.Next() {
		var (
			name   string
			offset int64
			size   int64
		)
		if err := rows.Scan(&name, &offset, &size); err != nil {
			return nil, fmt.Errorf("scanning avatar index: %w", err)
		}
		out = append(out, IndexEntry{FileName: name, Offset: Offset(uint64(offset)), Size: int(size)})
	}
	return out, rows.Err()
}

// Ping checks the database handle.
func (s *SQLiteIndex) Ping() error {
	return s.db.Ping()
}

func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
