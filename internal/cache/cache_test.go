package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gftdcojp/wxmedia/internal/types"
	"go.uber.org/zap"
)

// countingPersister records every save in memory.
type countingPersister struct {
	mu    sync.Mutex
	data  []byte
	saves int
	err   error
}

func (p *countingPersister) Load(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.data, nil
}

func (p *countingPersister) Save(_ context.Context, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.data = append([]byte(nil), data...)
	p.saves++
	return nil
}

func (p *countingPersister) saveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}

func digestN(i int) string {
	return fmt.Sprintf("%032x", i)
}

func TestCacheRoundTripThroughFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "emoji.cache")

	c := Open(ctx, NewFilePersister(path), Options{}, zap.NewNop())
	c.Put(ctx, digestN(1), []byte("gif-bytes"), types.FormatGIF)
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	reopened := Open(ctx, NewFilePersister(path), Options{}, zap.NewNop())
	e, ok := reopened.Get(digestN(1))
	if !ok {
		t.Fatal("entry missing after reload")
	}
	if string(e.Payload) != "gif-bytes" || e.Format != types.FormatGIF {
		t.Fatalf("reloaded entry = %+v", e)
	}
}

func TestCacheAutoFlushAfterThreshold(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{}
	c := Open(ctx, p, Options{FlushThreshold: 15}, zap.NewNop())

	for i := 0; i < 14; i++ {
		c.Put(ctx, digestN(i), []byte{byte(i)}, types.FormatPNG)
	}
	if p.saveCount() != 0 {
		t.Fatalf("flushed early after 14 puts (%d saves)", p.saveCount())
	}
	c.Put(ctx, digestN(14), []byte{14}, types.FormatPNG)
	if p.saveCount() != 1 {
		t.Fatalf("expected one flush after 15 puts, got %d", p.saveCount())
	}

	for i := 15; i < 29; i++ {
		c.Put(ctx, digestN(i), []byte{byte(i)}, types.FormatPNG)
	}
	if p.saveCount() != 1 {
		t.Fatalf("second flush came early (%d saves)", p.saveCount())
	}
	c.Put(ctx, digestN(29), []byte{29}, types.FormatPNG)
	if p.saveCount() != 2 {
		t.Fatalf("expected second flush at 30 entries, got %d", p.saveCount())
	}
}

func TestCacheFlushSkipsWhenClean(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{}
	c := Open(ctx, p, Options{}, zap.NewNop())
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if p.saveCount() != 0 {
		t.Fatal("flush of an unchanged cache should not save")
	}
	c.Put(ctx, digestN(1), []byte("x"), types.FormatPNG)
	c.Close(ctx)
	c.Close(ctx)
	if p.saveCount() != 1 {
		t.Fatalf("expected exactly one save, got %d", p.saveCount())
	}
}

func TestCacheCapacityStillFlushes(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{}
	c := Open(ctx, p, Options{MaxEntries: 4, FlushThreshold: 3}, zap.NewNop())

	for i := 0; i < 12; i++ {
		c.Put(ctx, digestN(i), []byte{byte(i)}, types.FormatPNG)
	}
	if c.Len() != 4 {
		t.Fatalf("len = %d, want 4", c.Len())
	}
	if p.saveCount() < 3 {
		t.Fatalf("expected flushes to continue at capacity, got %d", p.saveCount())
	}
	if _, ok := c.Get(digestN(0)); ok {
		t.Fatal("oldest entry should have been evicted")
	}
	if _, ok := c.Get(digestN(11)); !ok {
		t.Fatal("newest entry missing")
	}
}

func TestCacheFailedFlushRetries(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{err: errors.New("disk full")}
	c := Open(ctx, p, Options{FlushThreshold: 2}, zap.NewNop())
	c.Put(ctx, digestN(1), []byte("a"), types.FormatPNG)
	c.Put(ctx, digestN(2), []byte("b"), types.FormatPNG)
	if err := c.Flush(ctx); err == nil {
		t.Fatal("expected flush error")
	}

	p.mu.Lock()
	p.err = nil
	p.mu.Unlock()
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if p.saveCount() != 1 {
		t.Fatalf("pending changes should survive a failed flush, saves = %d", p.saveCount())
	}
}

func TestCacheCorruptSnapshotStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "emoji.cache")
	if err := os.WriteFile(path, []byte("definitely not a snapshot"), 0o644); err != nil {
		t.Fatal(err)
	}
	c := Open(ctx, NewFilePersister(path), Options{}, zap.NewNop())
	if c.Len() != 0 {
		t.Fatalf("expected empty cache, got %d entries", c.Len())
	}

	// truncated zstd body
	good, _ := EncodeSnapshot(map[string]Entry{digestN(1): {Payload: []byte("x"), Format: types.FormatPNG}})
	os.WriteFile(path, good[:len(good)-3], 0o644)
	c = Open(ctx, NewFilePersister(path), Options{}, zap.NewNop())
	if c.Len() != 0 {
		t.Fatalf("expected empty cache for truncated snapshot, got %d", c.Len())
	}
}

func TestCacheMissingFileStartsEmpty(t *testing.T) {
	c := Open(context.Background(), NewFilePersister(filepath.Join(t.TempDir(), "none")), Options{}, zap.NewNop())
	if c.Len() != 0 {
		t.Fatal("expected empty cache")
	}
}

func TestCacheConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	p := &countingPersister{}
	c := Open(ctx, p, Options{}, zap.NewNop())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				c.Put(ctx, digestN(w*1000+i), []byte{byte(i)}, types.FormatPNG)
				c.Get(digestN(i))
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 400 {
		t.Fatalf("len = %d, want 400", c.Len())
	}
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	snap, err := DecodeSnapshot(p.data)
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 400 {
		t.Fatalf("snapshot has %d entries, want 400", len(snap))
	}
}

func TestSnapshotRejectsForeignData(t *testing.T) {
	if _, err := DecodeSnapshot([]byte("WXMC")); err == nil {
		t.Fatal("expected error for header-only data")
	}
	if _, err := DecodeSnapshot([]byte("WXMC\x09rest")); err == nil {
		t.Fatal("expected error for unknown version")
	}
}

// mockS3 is an in-memory S3 implementation for testing.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte)}
}

func (m *mockS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(params.Body)
	m.mu.Lock()
	m.objects[*params.Bucket+"/"+*params.Key] = data
	m.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, params *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	data, ok := m.objects[*params.Bucket+"/"+*params.Key]
	m.mu.Unlock()
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestBlobPersisterRoundTrip(t *testing.T) {
	ctx := context.Background()
	mock := newMockS3()
	p := NewBlobPersister(mock, "media", "wxmedia/emoji.cache", zap.NewNop())

	data, err := p.Load(ctx)
	if err != nil || data != nil {
		t.Fatalf("fresh bucket load = %v, %v", data, err)
	}

	c := Open(ctx, p, Options{}, zap.NewNop())
	c.Put(ctx, digestN(7), []byte("webp"), types.FormatWEBP)
	if err := c.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok := mock.objects["media/wxmedia/emoji.cache"]; !ok {
		t.Fatal("snapshot not uploaded under the configured key")
	}

	reopened := Open(ctx, p, Options{}, zap.NewNop())
	e, ok := reopened.Get(digestN(7))
	if !ok || e.Format != types.FormatWEBP {
		t.Fatalf("reloaded = %+v, %v", e, ok)
	}
}

func TestBlobPersisterLoadErrorStartsEmpty(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("connection refused")
	c := Open(context.Background(), NewBlobPersister(mock, "b", "k", zap.NewNop()), Options{}, zap.NewNop())
	if c.Len() != 0 {
		t.Fatal("expected empty cache on load error")
	}
}
