package cache

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gftdcojp/wxmedia/internal/types"
	"github.com/klauspost/compress/zstd"
)

// Snapshot layout: [4 magic "WXMC"][1 version] zstd(cbor(map digest -> Entry)).
var snapshotMagic = []byte("WXMC")

const snapshotVersion = 1

// Entry is one cached decode.
type Entry struct {
	Payload []byte       `cbor:"1,keyasint"`
	Format  types.Format `cbor:"2,keyasint"`
}

var (
	encMode     cbor.EncMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("cache: CBOR encoder initialization failed: " + err.Error())
	}
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("cache: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("cache: zstd decoder initialization failed: " + err.Error())
	}
}

// EncodeSnapshot serializes the full map.
func EncodeSnapshot(entries map[string]Entry) ([]byte, error) {
	raw, err := encMode.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encoding cache snapshot: %w", err)
	}
	out := make([]byte, 0, len(snapshotMagic)+1+len(raw)/2)
	out = append(out, snapshotMagic...)
	out = append(out, snapshotVersion)
	return zstdEncoder.EncodeAll(raw, out), nil
}

// DecodeSnapshot parses data written by EncodeSnapshot.
func DecodeSnapshot(data []byte) (map[string]Entry, error) {
	if len(data) < len(snapshotMagic)+1 || !bytes.HasPrefix(data, snapshotMagic) {
		return nil, fmt.Errorf("not a cache snapshot")
	}
	if v := data[len(snapshotMagic)]; v != snapshotVersion {
		return nil, fmt.Errorf("unsupported cache snapshot version %d", v)
	}
	raw, err := zstdDecoder.DecodeAll(data[len(snapshotMagic)+1:], nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing cache snapshot: %w", err)
	}
	entries := make(map[string]Entry)
	if err := cbor.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decoding cache snapshot: %w", err)
	}
	return entries, nil
}
