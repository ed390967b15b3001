package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// Persister stores the serialized snapshot. Load returns nil data when
// nothing has been persisted yet.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
}

// FilePersister keeps the snapshot in a single local file, replaced
// atomically on save.
type FilePersister struct {
	path string
}

func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

func (p *FilePersister) Load(context.Context) ([]byte, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (p *FilePersister) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p.path)
}

// S3API is the subset of the S3 client the blob persister uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// BlobPersister keeps the snapshot as one object in S3-compatible storage.
type BlobPersister struct {
	s3     S3API
	bucket string
	key    string
	logger *zap.Logger
}

func NewBlobPersister(s3api S3API, bucket, key string, logger *zap.Logger) *BlobPersister {
	return &BlobPersister{s3: s3api, bucket: bucket, key: key, logger: logger}
}

func (p *BlobPersister) Load(ctx context.Context) ([]byte, error) {
	resp, err := p.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &p.bucket,
		Key:    &p.key,
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("downloading cache snapshot: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading S3 response: %w", err)
	}
	return data, nil
}

func (p *BlobPersister) Save(ctx context.Context, data []byte) error {
	_, err := p.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &p.bucket,
		Key:         &p.key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading cache snapshot: %w", err)
	}
	p.logger.Debug("cache snapshot uploaded", zap.String("key", p.key), zap.Int("size", len(data)))
	return nil
}
