package opener

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"

	"brokerage_ledger/internal/ports"
)

type HTTPOpener struct {
	Client   *http.Client
	MaxBytes int64
}

func NewHTTPOpener(cli *http.Client, maxBytes int64) *HTTPOpener {
	if cli == nil {
		cli = &http.Client{}
	}
	return &HTTPOpener{Client: cli, MaxBytes: maxBytes}
}

type limitedBody struct {
	io.Reader
	io.Closer
}

func (h *HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, ports.Meta, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ports.Meta{}, err
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		log.Printf("[OPENER][HTTP][ERR] url=%q do: %v", url, err)
		return nil, ports.Meta{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		log.Printf("[OPENER][HTTP][ERR] url=%q status=%d", url, resp.StatusCode)
		return nil, ports.Meta{}, fmt.Errorf("http status %d", resp.StatusCode)
	}
	if h.MaxBytes > 0 && resp.ContentLength > h.MaxBytes {
		resp.Body.Close()
		return nil, ports.Meta{}, fmt.Errorf("remote file is %d bytes, limit is %d", resp.ContentLength, h.MaxBytes)
	}

	size := resp.ContentLength
	if size < 0 {
		size = -1
	}
	var body io.ReadCloser = resp.Body
	if h.MaxBytes > 0 {
		// one extra byte lets the reader tell an oversized body from a full one
		body = limitedBody{Reader: io.LimitReader(resp.Body, h.MaxBytes+1), Closer: resp.Body}
	}
	log.Printf("[OPENER][HTTP][OK] url=%q content_type=%q size=%d", url, resp.Header.Get("Content-Type"), size)
	return body, ports.Meta{
		Source:      "https",
		Name:        path.Base(req.URL.Path),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        size,
	}, nil
}
