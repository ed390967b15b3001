package block

import (
	"context"
	"sort"
	"strings"
)

// IndexEntry locates one record in the store.
type IndexEntry struct {
	FileName string
	Offset   Offset
	Size     int
}

// Index finds records whose stored filename contains an identifier.
type Index interface {
	Lookup(ctx context.Context, id string) ([]IndexEntry, error)
}

// Priority weighs candidate names: high-definition PNGs first.
func Priority(name string) int {
	if strings.Contains(name, "_hd") && strings.HasSuffix(name, ".png") {
		return 10
	}
	return 1
}

// SortByPriority orders items by descending Priority of name(item). Equal
// priorities keep their original order.
func SortByPriority[T any](items []T, name func(T) string) {
	sort.SliceStable(items, func(i, j int) bool {
		return Priority(name(items[i])) > Priority(name(items[j]))
	})
}

// SortEntries orders index entries by priority.
func SortEntries(entries []IndexEntry) {
	SortByPriority(entries, func(e IndexEntry) string { return e.FileName })
}

// MemIndex is an in-memory Index, typically filled from Writer.Entries.
type MemIndex struct {
	Entries []IndexEntry
}

func (m *MemIndex) Lookup(_ context.Context, id string) ([]IndexEntry, error) {
	var out []IndexEntry
	for _, e := range m.Entries {
		if strings.Contains(e.FileName, id) {
			out = append(out, e)
		}
	}
	return out, nil
}
