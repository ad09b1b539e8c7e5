package ports

import (
	"context"
	"io"
)

// Meta describes an opened object: an import sheet or a stored receipt.
type Meta struct {
	Source      string
	Name        string
	ContentType string
	Size        int64
	Bucket      string
	Key         string
}

type FileOpener interface {
	Open(ctx context.Context, filePath string) (io.ReadCloser, Meta, error)
}
