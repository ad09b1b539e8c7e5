package receipts

import (
	"mime"
	"path"
	"strings"

	"brokerage_ledger/internal/apperr"
	"brokerage_ledger/internal/models"

	"github.com/google/uuid"
)

const (
	Prefix          = "comprobantes"
	DefaultMaxBytes = 10 << 20
)

var allowedTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// NewKey builds comprobantes/<uuid>.<ext>, keeping the original extension so
// browsers render the public URL correctly.
func NewKey(filename string) string {
	ext := strings.ToLower(path.Ext(path.Base(strings.ReplaceAll(filename, "\\", "/"))))
	if ext == "." {
		ext = ""
	}
	return Prefix + "/" + uuid.NewString() + ext
}

// ContentType falls back to the extension when the client sent nothing.
func ContentType(name, declared string) string {
	ct := strings.TrimSpace(strings.ToLower(declared))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(strings.ToLower(path.Ext(name))); byExt != "" {
		if i := strings.IndexByte(byExt, ';'); i >= 0 {
			byExt = byExt[:i]
		}
		return byExt
	}
	return ct
}

func Validate(f models.ReceiptFile, maxBytes int64) error {
	if len(f.Body) == 0 {
		return apperr.Invalid("receipt", "file is empty")
	}
	if maxBytes > 0 && int64(len(f.Body)) > maxBytes {
		return apperr.Invalid("receipt", "file is larger than the allowed size")
	}
	if ct := ContentType(f.Name, f.ContentType); !allowedTypes[ct] {
		return apperr.Invalid("receipt", "only images (JPG, PNG, GIF, WEBP) or PDF are allowed")
	}
	return nil
}
