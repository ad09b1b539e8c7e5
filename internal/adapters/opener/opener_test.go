package opener

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"brokerage_ledger/internal/apperr"

	"github.com/minio/minio-go/v7"
)

func TestParseS3URL(t *testing.T) {
	b, k, err := parseS3URL("s3://imports/2026/payments.xlsx")
	if err != nil || b != "imports" || k != "2026/payments.xlsx" {
		t.Fatalf("got %q %q %v", b, k, err)
	}
	for _, bad := range []string{"s3://", "s3://bucket", "s3:///key", "http://x/y"} {
		if _, _, err := parseS3URL(bad); err == nil {
			t.Errorf("%q: expected error", bad)
		}
	}
}

func TestCompoundOpener_rejectsForeignBucketsAndTraversal(t *testing.T) {
	c := NewCompoundOpener(nil, &S3Opener{}, "imports")

	if _, _, err := c.Open(context.Background(), "s3://receipts/comprobantes/a.pdf"); err == nil ||
		!strings.Contains(err.Error(), "not readable") {
		t.Fatalf("expected bucket rejection, got %v", err)
	}
	if _, _, err := c.Open(context.Background(), "../etc/passwd"); err == nil {
		t.Fatalf("expected traversal rejection")
	}
	if _, _, err := c.Open(context.Background(), "https://example.com/a.csv"); err == nil {
		t.Fatalf("expected error without http opener")
	}
}

func TestHTTPOpener(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.csv" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, "plan_id,amount\np1,100\n")
	}))
	defer srv.Close()

	op := NewHTTPOpener(srv.Client(), 1<<20)
	rc, meta, err := op.Open(context.Background(), srv.URL+"/sheet.csv")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rc.Close()
	b, _ := io.ReadAll(rc)
	if !strings.HasPrefix(string(b), "plan_id") || meta.Name != "sheet.csv" || meta.ContentType != "text/csv" {
		t.Fatalf("unexpected body=%q meta=%+v", b, meta)
	}

	if _, _, err := op.Open(context.Background(), srv.URL+"/missing.csv"); err == nil {
		t.Fatalf("expected error for 404")
	}

	small := NewHTTPOpener(srv.Client(), 5)
	if rc, _, err := small.Open(context.Background(), srv.URL+"/sheet.csv"); err == nil {
		b, _ := io.ReadAll(rc)
		rc.Close()
		if len(b) != 6 {
			t.Fatalf("expected body cut at limit+1, got %d bytes", len(b))
		}
	}
}

func TestStatErr(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	if err := statErr("receipts", "comprobantes/x.pdf", missing); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	denied := minio.ErrorResponse{Code: "AccessDenied"}
	if err := statErr("receipts", "k", denied); errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("access denied is not a missing object")
	}
}
