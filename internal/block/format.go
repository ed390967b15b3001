// Package block reads the sharded, append-only avatar block store.
//
// A store is a directory of shard files named avatar.block.NNNNN. Each record
// is a fixed 16-byte header, the stored filename, one terminator byte and the
// payload. Records are addressed by a 64-bit offset whose high 32 bits select
// the shard and whose low 32 bits are the record start inside that shard.
package block

import (
	"encoding/binary"
	"fmt"
)

const (
	// RecordHeaderSize is the per-record header width fixed by the format.
	RecordHeaderSize = 16

	// ShardPrefix is shared by every shard file in a store directory.
	ShardPrefix = "avatar.block."

	// MaxShardSize bounds a shard so record starts fit in the low 32 bits.
	MaxShardSize = 1<<32 - 1
)

// Offset is the encoded logical position of a record.
type Offset uint64

// MakeOffset packs a shard index and a record start into an Offset.
func MakeOffset(shard uint32, pos uint32) Offset {
	return Offset(uint64(shard)<<32 | uint64(pos))
}

// Shard returns the shard index (value >> 32).
func (o Offset) Shard() uint32 {
	return uint32(uint64(o) >> 32)
}

// Position returns the record start inside the shard (value mod 2^32).
func (o Offset) Position() uint64 {
	return uint64(o) - uint64(o.Shard())<<32
}

func (o Offset) String() string {
	return fmt.Sprintf("%d:%d", o.Shard(), o.Position())
}

// ShardName returns the file name of shard idx.
func ShardName(idx uint32) string {
	return fmt.Sprintf("%s%05d", ShardPrefix, idx)
}

// PayloadStart returns the absolute byte position of the payload for the
// record at o whose stored filename is filename.
func PayloadStart(o Offset, filename string) int64 {
	return int64(o.Position()) + RecordHeaderSize + int64(len(filename)) + 1
}

// RecordSize is the on-disk footprint of a record.
func RecordSize(filename string, payloadLen int) int64 {
	return RecordHeaderSize + int64(len(filename)) + 1 + int64(payloadLen)
}

// encodeHeader lays out [4 name_len][4 payload_len][8 reserved], big-endian.
// Readers never parse it; only the width is load bearing.
func encodeHeader(filename string, payloadLen int) []byte {
	hdr := make([]byte, RecordHeaderSize)
	binary.BigEndian.PutUint32(hdr[0:4], uint32(len(filename)))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(payloadLen))
	return hdr
}
