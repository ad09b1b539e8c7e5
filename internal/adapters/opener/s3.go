package opener

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/ports"

	"github.com/minio/minio-go/v7"
)

// S3Client is the part of *minio.Client the openers and the receipt store use.
type S3Client interface {
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

type S3Opener struct{ Client S3Client }

func NewS3Opener(cli S3Client) *S3Opener { return &S3Opener{Client: cli} }

// Open stats first so a missing sheet or receipt fails here with
// apperr.ErrNotFound instead of on the first Read.
func (s *S3Opener) Open(ctx context.Context, bucket, key string) (io.ReadCloser, ports.Meta, error) {
	st, err := s.Client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if err != nil {
		log.Printf("[OPENER][S3][ERR] bucket=%q key=%q stat: %v", bucket, key, err)
		return nil, ports.Meta{}, statErr(bucket, key, err)
	}
	obj, err := s.Client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		log.Printf("[OPENER][S3][ERR] bucket=%q key=%q get: %v", bucket, key, err)
		return nil, ports.Meta{}, fmt.Errorf("s3 get %s/%s: %w", bucket, key, err)
	}
	return obj, ports.Meta{
		Source:      "s3",
		Name:        path.Base(key),
		ContentType: st.ContentType,
		Size:        st.Size,
		Bucket:      bucket,
		Key:         key,
	}, nil
}

func statErr(bucket, key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("s3 object %s/%s: %w", bucket, key, apperr.ErrNotFound)
	}
	return fmt.Errorf("s3 stat %s/%s: %w", bucket, key, err)
}
