// Package receipts stores payment receipts in an S3 compatible bucket.
package receipts

import (
	"bytes"
	"context"
	"io"
	"log"
	"strings"

	"brokerage_ledger/internal/adapters/opener"
	"brokerage_ledger/internal/ports"

	"github.com/minio/minio-go/v7"
)

type Client interface {
	opener.S3Client
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

type Store struct {
	client     Client
	bucket     string
	publicBase string
	retry      RetryPolicy
}

// NewStore serves public URLs as <publicBase>/<bucket>/<key>.
func NewStore(client Client, bucket, publicBase string, retry RetryPolicy) *Store {
	return &Store{
		client:     client,
		bucket:     bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		retry:      retry,
	}
}

func (s *Store) Upload(ctx context.Context, key string, body []byte, contentType string) error {
	ct := ContentType(key, contentType)
	return s.retry.Do(ctx, "put "+key, func(ctx context.Context) error {
		info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: ct})
		if err != nil {
			return permanent(err)
		}
		log.Printf("[RECEIPTS][PUT][OK] bucket=%q key=%q size=%d etag=%q", s.bucket, key, info.Size, info.ETag)
		return nil
	})
}

func (s *Store) PublicURL(key string) string {
	return s.publicBase + "/" + s.bucket + "/" + strings.TrimLeft(key, "/")
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		log.Printf("[RECEIPTS][DEL][ERR] key=%q err=%v", key, err)
		return err
	}
	return nil
}

func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, ports.Meta, error) {
	return opener.NewS3Opener(s.client).Open(ctx, s.bucket, key)
}
