package s3util

import (
	"context"
	"testing"

	"github.com/gftdcojp/wxmedia/internal/config"
)

func TestNewClientRequiresBucket(t *testing.T) {
	if _, err := NewClient(context.Background(), config.BlobConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected error without bucket")
	}
}

func TestNewClientStaticCredentials(t *testing.T) {
	c, err := NewClient(context.Background(), config.BlobConfig{
		Region:          "us-east-1",
		Endpoint:        "http://127.0.0.1:9000",
		Bucket:          "media",
		Key:             "wxmedia/emoji.cache",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		ForcePathStyle:  true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Bucket != "media" || c.Key != "wxmedia/emoji.cache" {
		t.Fatalf("unexpected client %+v", c)
	}
	if !c.S3.Options().UsePathStyle {
		t.Fatal("path style not applied")
	}
}
