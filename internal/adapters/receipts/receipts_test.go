package receipts

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"

	"github.com/minio/minio-go/v7"
)

func TestNewKey(t *testing.T) {
	k := NewKey(`C:\scans\Voucher.PDF`)
	if !strings.HasPrefix(k, Prefix+"/") || !strings.HasSuffix(k, ".pdf") {
		t.Fatalf("unexpected key %q", k)
	}
	if NewKey("a.pdf") == NewKey("a.pdf") {
		t.Fatalf("keys must not collide")
	}
	if k := NewKey("noext"); strings.Contains(strings.TrimPrefix(k, Prefix+"/"), ".") {
		t.Fatalf("expected no extension, got %q", k)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("x.png", "image/png; charset=binary"); got != "image/png" {
		t.Fatalf("got %q", got)
	}
	if got := ContentType("x.pdf", "application/octet-stream"); got != "application/pdf" {
		t.Fatalf("got %q", got)
	}
}

func TestValidate(t *testing.T) {
	ok := models.ReceiptFile{Name: "r.jpg", ContentType: "image/jpeg", Body: []byte{1, 2, 3}}
	if err := Validate(ok, 10); err != nil {
		t.Fatalf("unexpected %v", err)
	}
	for name, f := range map[string]models.ReceiptFile{
		"empty":     {Name: "r.jpg", ContentType: "image/jpeg"},
		"too large": {Name: "r.jpg", ContentType: "image/jpeg", Body: make([]byte, 11)},
		"type":      {Name: "r.txt", ContentType: "text/plain", Body: []byte("hi")},
	} {
		if err := Validate(f, 10); !apperr.IsValidation(err) {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestRetryPolicy(t *testing.T) {
	calls := 0
	p := RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond}
	err := p.Do(context.Background(), "put", func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	if err != nil || calls != 3 {
		t.Fatalf("expected success on third attempt, got err=%v calls=%d", err, calls)
	}

	calls = 0
	boom := errors.New("down")
	err = p.Do(context.Background(), "put", func(context.Context) error { calls++; return boom })
	if !errors.Is(err, boom) || calls != 3 {
		t.Fatalf("expected 3 attempts ending in boom, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicy_stopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := RetryPolicy{MaxAttempts: 5, Backoff: time.Hour}
	err := p.Do(ctx, "put", func(context.Context) error {
		calls++
		cancel()
		return errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) || calls != 1 {
		t.Fatalf("expected cancel after first attempt, got err=%v calls=%d", err, calls)
	}
}

func TestRetryPolicy_zeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_ = RetryPolicy{}.Do(context.Background(), "put", func(context.Context) error { calls++; return errors.New("x") })
	if calls != 1 {
		t.Fatalf("expected one attempt, got %d", calls)
	}
}

type fakeClient struct {
	puts    map[string][]byte
	putErrs int
	putErr  error
	calls   int
	removed []string
}

func (f *fakeClient) StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	return minio.ObjectInfo{}, errors.New("not implemented")
}

func (f *fakeClient) GetObject(ctx context.Context, bucket, key string, opts minio.GetObjectOptions) (*minio.Object, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeClient) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	f.calls++
	if f.putErrs > 0 {
		f.putErrs--
		if f.putErr != nil {
			return minio.UploadInfo{}, f.putErr
		}
		return minio.UploadInfo{}, errors.New("503")
	}
	b, _ := io.ReadAll(r)
	f.puts[bucket+"/"+key+"|"+opts.ContentType] = b
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: int64(len(b))}, nil
}

func (f *fakeClient) RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error {
	f.removed = append(f.removed, bucket+"/"+key)
	return nil
}

func TestStore(t *testing.T) {
	cli := &fakeClient{puts: map[string][]byte{}, putErrs: 1}
	s := NewStore(cli, "receipts", "https://cdn.example.com/", RetryPolicy{MaxAttempts: 2})

	if err := s.Upload(context.Background(), "comprobantes/a.pdf", []byte("%PDF"), ""); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if _, ok := cli.puts["receipts/comprobantes/a.pdf|application/pdf"]; !ok {
		t.Fatalf("expected object with detected content type, got %v", cli.puts)
	}
	if got := s.PublicURL("comprobantes/a.pdf"); got != "https://cdn.example.com/receipts/comprobantes/a.pdf" {
		t.Fatalf("public url = %q", got)
	}
	if err := s.Delete(context.Background(), "comprobantes/a.pdf"); err != nil || len(cli.removed) != 1 {
		t.Fatalf("delete: %v %v", err, cli.removed)
	}
}

func TestStore_doesNotRetryRejectedUploads(t *testing.T) {
	denied := minio.ErrorResponse{Code: "AccessDenied", Message: "Access Denied."}
	cli := &fakeClient{puts: map[string][]byte{}, putErrs: 5, putErr: denied}
	s := NewStore(cli, "receipts", "https://cdn.example.com", RetryPolicy{MaxAttempts: 4, Backoff: time.Millisecond})

	err := s.Upload(context.Background(), "comprobantes/a.pdf", []byte("%PDF"), "application/pdf")
	if err == nil || cli.calls != 1 {
		t.Fatalf("expected a single rejected attempt, got err=%v calls=%d", err, cli.calls)
	}
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) || resp.Code != "AccessDenied" {
		t.Fatalf("storage answer should be kept, got %v", err)
	}

	cli = &fakeClient{puts: map[string][]byte{}, putErrs: 2, putErr: minio.ErrorResponse{Code: "SlowDown"}}
	s = NewStore(cli, "receipts", "https://cdn.example.com", RetryPolicy{MaxAttempts: 4, Backoff: time.Millisecond})
	if err := s.Upload(context.Background(), "comprobantes/b.pdf", []byte("%PDF"), "application/pdf"); err != nil || cli.calls != 3 {
		t.Fatalf("throttling should be retried, got err=%v calls=%d", err, cli.calls)
	}
}
