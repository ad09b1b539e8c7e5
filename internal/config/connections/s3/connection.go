package s3

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type ConnectionInfo struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	Region         string
	ImportsBucket  string
	ReceiptsBucket string
	UseSSL         bool
}

// S3 carries one client for both buckets: import sheets and payment receipts.
type S3 struct {
	Client         *minio.Client
	ImportsBucket  string
	ReceiptsBucket string
}

func NewConnection(info ConnectionInfo) (*S3, error) {
	client, err := minio.New(info.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(info.AccessKey, info.SecretKey, ""),
		Secure: info.UseSSL,
		Region: info.Region,
	})
	if err != nil {
		return nil, err
	}

	return &S3{
		Client:         client,
		ImportsBucket:  info.ImportsBucket,
		ReceiptsBucket: info.ReceiptsBucket,
	}, nil
}

func (s *S3) Buckets() []string {
	return []string{s.ImportsBucket, s.ReceiptsBucket}
}

// EnsureBuckets creates missing buckets; used in local setups.
func (s *S3) EnsureBuckets(ctx context.Context) error {
	for _, b := range s.Buckets() {
		exists, err := s.Client.BucketExists(ctx, b)
		if err != nil {
			return fmt.Errorf("bucket %q: %w", b, err)
		}
		if exists {
			continue
		}
		if err := s.Client.MakeBucket(ctx, b, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("make bucket %q: %w", b, err)
		}
	}
	return nil
}

// EndpointURL is the default base for public receipt URLs.
func (s *S3) EndpointURL() string {
	return s.Client.EndpointURL().String()
}
