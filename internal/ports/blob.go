package ports

import (
	"context"
	"io"
)

type ReceiptStore interface {
	Upload(ctx context.Context, key string, body []byte, contentType string) error
	PublicURL(key string) string
	Delete(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, Meta, error)
}
