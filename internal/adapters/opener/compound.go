// Package opener resolves import sheet locations: https URLs, s3:// URLs or
// bare keys inside the imports bucket.
package opener

import (
	"context"
	"errors"
	"io"
	"net/url"
	"path"
	"strings"

	"brokerage_ledger/internal/ports"
)

type CompoundOpener struct {
	HTTP *HTTPOpener
	S3   *S3Opener

	ImportsBucket string
	// AllowedBuckets limits s3:// paths; the imports bucket is always allowed.
	AllowedBuckets map[string]bool
}

func NewCompoundOpener(httpOp *HTTPOpener, s3Op *S3Opener, importsBucket string) *CompoundOpener {
	return &CompoundOpener{
		HTTP:           httpOp,
		S3:             s3Op,
		ImportsBucket:  importsBucket,
		AllowedBuckets: map[string]bool{importsBucket: true},
	}
}

func (c *CompoundOpener) Open(ctx context.Context, filePath string) (io.ReadCloser, ports.Meta, error) {
	fp := strings.TrimSpace(filePath)

	switch {
	case strings.HasPrefix(fp, "http://") || strings.HasPrefix(fp, "https://"):
		if c.HTTP == nil {
			return nil, ports.Meta{}, errors.New("http opener not configured")
		}
		return c.HTTP.Open(ctx, fp)

	case strings.HasPrefix(fp, "s3://"):
		if c.S3 == nil {
			return nil, ports.Meta{}, errors.New("s3 opener not configured")
		}
		bkt, key, err := parseS3URL(fp)
		if err != nil {
			return nil, ports.Meta{}, err
		}
		if !c.AllowedBuckets[bkt] {
			return nil, ports.Meta{}, errors.New("bucket " + bkt + " is not readable by imports")
		}
		return c.S3.Open(ctx, bkt, key)

	default:
		if c.S3 == nil || c.ImportsBucket == "" {
			return nil, ports.Meta{}, errors.New("missing bucket: pass s3://bucket/key or https url")
		}
		key := path.Clean(strings.TrimPrefix(fp, "/"))
		if key == "." || strings.HasPrefix(key, "..") {
			return nil, ports.Meta{}, errors.New("invalid key " + fp)
		}
		return c.S3.Open(ctx, c.ImportsBucket, key)
	}
}

func parseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" {
		return "", "", errors.New("scheme must be s3")
	}
	bucket = u.Host
	key = path.Clean(strings.TrimPrefix(u.Path, "/"))
	if bucket == "" || key == "" || key == "." || key == "/" {
		return "", "", errors.New("empty bucket or key")
	}
	return bucket, key, nil
}
