// Package importer streams CSV or XLSX sheets into batch processors.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/url"
	"path"
	"strings"
	"time"

	"brokerage_ledger/internal/models"
	"brokerage_ledger/internal/ports"

	"github.com/xuri/excelize/v2"
)

const DefaultMaxFileBytes = 32 << 20

type Request struct {
	Type           string
	FilePath       string
	BatchSize      int
	ImportRecordID string
	Session        models.Session
}

type Result struct {
	Source        string
	FilePath      string
	Format        string
	RowsProcessed int
	RowsFailed    int
	SHA256        string
	ContentType   string
	Bucket        string
	Key           string
	SizeBytes     int64
}

type Service struct {
	Opener       ports.FileOpener
	Processors   map[string]ports.Processor
	DefaultBS    int
	MaxFileBytes int64
}

func NewService(opener ports.FileOpener, registry map[string]ports.Processor, defaultBatch int) *Service {
	if defaultBatch <= 0 {
		defaultBatch = 500
	}
	return &Service{Opener: opener, Processors: registry, DefaultBS: defaultBatch, MaxFileBytes: DefaultMaxFileBytes}
}

func (s *Service) Import(ctx context.Context, req Request) (Result, error) {
	t0 := time.Now()
	ctx = context.WithValue(ctx, ports.CtxImportRecordID, req.ImportRecordID)
	ctx = context.WithValue(ctx, ports.CtxSession, req.Session)
	log.Printf("[IMP][START] type=%q path=%q batch_size=%d import_record_id=%q user=%s",
		req.Type, req.FilePath, req.BatchSize, req.ImportRecordID, req.Session.UserID)

	proc, ok := s.Processors[req.Type]
	if !ok {
		log.Printf("[IMP][ERR] no processor for type=%q", req.Type)
		return Result{}, errors.New("no processor for type: " + req.Type)
	}

	rc, meta, err := s.Opener.Open(ctx, req.FilePath)
	if err != nil {
		log.Printf("[IMP][ERR] open: %v", err)
		return Result{}, err
	}
	defer rc.Close()

	// both readers may need a second pass, so the sheet is held in memory
	body, err := io.ReadAll(io.LimitReader(rc, s.MaxFileBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("read %s: %w", req.FilePath, err)
	}
	if int64(len(body)) > s.MaxFileBytes {
		return Result{}, fmt.Errorf("file exceeds %d bytes", s.MaxFileBytes)
	}
	sum := sha256.Sum256(body)

	format := detectFormat(req.FilePath, meta.ContentType)
	log.Printf("[IMP] source=%s content_type=%q size=%d detected_format=%s", meta.Source, meta.ContentType, len(body), format)

	batchSize := req.BatchSize
	if batchSize <= 0 {
		batchSize = s.DefaultBS
	}

	readers := map[string]func(context.Context, []byte, *batcher) error{
		"xlsx": readXLSX,
		"csv":  readCSV,
	}
	order := []string{"xlsx", "csv"}
	if format == "csv" {
		order = []string{"csv", "xlsx"}
	}

	var b *batcher
	var readErr error
	for _, f := range order {
		b = &batcher{proc: proc, size: batchSize}
		if readErr = readers[f](ctx, body, b); readErr == nil {
			format = f
			break
		}
		if b.total > 0 {
			// rows already reached the processor; a retry would duplicate them
			break
		}
		log.Printf("[IMP][%s][ERR] %v", strings.ToUpper(f), readErr)
	}
	if readErr != nil {
		log.Printf("[IMP][ERR] read pipeline: %v", readErr)
		return Result{RowsProcessed: b.total, RowsFailed: b.failed}, readErr
	}

	log.Printf("[IMP][DONE] type=%q fmt=%s rows=%d failed=%d batches=%d duration=%s",
		req.Type, format, b.total, b.failed, b.batches, time.Since(t0))

	return Result{
		Source:        meta.Source,
		FilePath:      req.FilePath,
		Format:        format,
		RowsProcessed: b.total,
		RowsFailed:    b.failed,
		SHA256:        hex.EncodeToString(sum[:]),
		ContentType:   meta.ContentType,
		Bucket:        meta.Bucket,
		Key:           meta.Key,
		SizeBytes:     int64(len(body)),
	}, nil
}

type batcher struct {
	proc    ports.Processor
	size    int
	header  []string
	pending []ports.Row
	total   int
	failed  int
	batches int
}

func (b *batcher) add(ctx context.Context, line int, cols []string) error {
	if isBlank(cols) {
		return nil
	}
	b.pending = append(b.pending, ports.Row{Line: line, Fields: toMap(b.header, cols)})
	if len(b.pending) >= b.size {
		return b.flush(ctx)
	}
	return nil
}

func (b *batcher) flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.batches++
	log.Printf("[IMP] send batch #%d size=%d total_so_far=%d", b.batches, len(b.pending), b.total)
	failed, err := b.proc.ProcessBatch(ctx, b.pending)
	b.total += len(b.pending)
	b.failed += failed
	b.pending = b.pending[:0]
	return err
}

func readCSV(ctx context.Context, body []byte, b *batcher) error {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return err
	}
	log.Printf("[IMP][CSV] header=%v", header)
	b.header = header

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return fmt.Errorf("csv line %d: %w", line, err)
		}
		if err := b.add(ctx, line, record); err != nil {
			return err
		}
	}
	return b.flush(ctx)
}

func readXLSX(ctx context.Context, body []byte, b *batcher) error {
	f, err := excelize.OpenReader(bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errors.New("xlsx has no sheets")
	}
	sheet := sheets[0]
	log.Printf("[IMP][XLSX] first_sheet=%q", sheet)

	rows, err := f.Rows(sheet)
	if err != nil {
		return err
	}
	defer rows.Close()

	if !rows.Next() {
		return rows.Error()
	}
	header, err := rows.Columns()
	if err != nil {
		return err
	}
	log.Printf("[IMP][XLSX] header=%v", header)
	b.header = header

	line := 1
	for rows.Next() {
		line++
		cols, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("xlsx row %d: %w", line, err)
		}
		if err := b.add(ctx, line, cols); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return err
	}
	return b.flush(ctx)
}

func toMap(header []string, row []string) map[string]string {
	m := make(map[string]string, len(header))
	for i, key := range header {
		val := ""
		if i < len(row) {
			val = row[i]
		}
		m[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(val)
	}
	return m
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func detectFormat(filePath, contentType string) string {
	p := filePath
	if u, err := url.Parse(filePath); err == nil && u != nil && u.Path != "" {
		p = u.Path
	}
	switch strings.ToLower(strings.TrimPrefix(path.Ext(p), ".")) {
	case "xlsx":
		return "xlsx"
	case "csv":
		return "csv"
	}
	med, _, _ := mime.ParseMediaType(contentType)
	switch med {
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return "xlsx"
	case "text/csv", "application/csv", "text/plain":
		return "csv"
	}
	return ""
}
