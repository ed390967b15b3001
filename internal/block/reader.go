package block

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gftdcojp/wxmedia/internal/types"
)

// Reader extracts payloads from the shard files in one directory.
type Reader struct {
	dir string
}

// NewReader creates a Reader over dir.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// Dir returns the shard directory.
func (r *Reader) Dir() string {
	return r.dir
}

// Available reports whether the directory holds at least one shard file.
func (r *Reader) Available() bool {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "avatar") {
			return true
		}
	}
	return false
}

// Read returns exactly size payload bytes of the record stored as filename at
// offset. A missing shard or a read running past EOF is ErrNotFound; partial
// data is never returned.
func (r *Reader) Read(filename string, offset Offset, size int) ([]byte, error) {
	if size < 0 {
		return nil, fmt.Errorf("negative size %d: %w", size, types.ErrNotFound)
	}
	path := filepath.Join(r.dir, ShardName(offset.Shard()))
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("shard %s: %w", filepath.Base(path), types.ErrNotFound)
		}
		return nil, fmt.Errorf("opening shard: %w", err)
	}
	defer f.Close()

	start := PayloadStart(offset, filename)
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat shard: %w", err)
	}
	if start+int64(size) > info.Size() {
		return nil, fmt.Errorf("record %s at %s runs past end of shard (%d > %d): %w",
			filename, offset, start+int64(size), info.Size(), types.ErrNotFound)
	}

	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, start); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("short read of %s: %w", filename, types.ErrNotFound)
		}
		return nil, fmt.Errorf("reading shard: %w", err)
	}
	return buf, nil
}

// ReadEntry is Read for an index entry.
func (r *Reader) ReadEntry(e IndexEntry) ([]byte, error) {
	return r.Read(e.FileName, e.Offset, e.Size)
}
