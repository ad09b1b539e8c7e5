package ports

import "context"

type ctxKey string

const (
	CtxImportRecordID ctxKey = "import_record_id"
	CtxSession        ctxKey = "session"
)

// Row is one sheet line keyed by trimmed header; Line is 1-based and counts
// the header.
type Row struct {
	Line   int
	Fields map[string]string
}

type Processor interface {
	Type() string
	ProcessBatch(ctx context.Context, batch []Row) (failed int, err error)
}
