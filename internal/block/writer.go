package block

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Writer appends records to a store directory, rolling over to a new shard
// when the current one would exceed the target size. It produces the same
// layout Reader consumes and is used to seed stores.
type Writer struct {
	mu         sync.Mutex
	dir        string
	targetSize int64
	shard      uint32
	pos        int64
	entries    []IndexEntry
}

// NewWriter creates a writer that starts at shard 0 in dir.
func NewWriter(dir string, targetSize int64) (*Writer, error) {
	if targetSize <= 0 || targetSize > MaxShardSize {
		targetSize = MaxShardSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating block dir: %w", err)
	}
	return &Writer{dir: dir, targetSize: targetSize}, nil
}

// Append writes one record and returns its index entry.
func (w *Writer) Append(filename string, payload []byte) (IndexEntry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	recSize := RecordSize(filename, len(payload))
	if w.pos > 0 && w.pos+recSize > w.targetSize {
		w.shard++
		w.pos = 0
	}

	path := filepath.Join(w.dir, ShardName(w.shard))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("opening shard for append: %w", err)
	}
	defer f.Close()

	rec := make([]byte, 0, recSize)
	rec = append(rec, encodeHeader(filename, len(payload))...)
	rec = append(rec, filename...)
	rec = append(rec, 0)
	rec = append(rec, payload...)
	if _, err := f.Write(rec); err != nil {
		return IndexEntry{}, fmt.Errorf("appending record: %w", err)
	}

	entry := IndexEntry{
		FileName: filename,
		Offset:   MakeOffset(w.shard, uint32(w.pos)),
		Size:     len(payload),
	}
	w.pos += recSize
	w.entries = append(w.entries, entry)
	return entry, nil
}

// Entries returns every entry appended so far.
func (w *Writer) Entries() []IndexEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]IndexEntry, len(w.entries))
	copy(out, w.entries)
	return out
}

// Shard returns the shard currently being appended to.
func (w *Writer) Shard() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.shard
}
