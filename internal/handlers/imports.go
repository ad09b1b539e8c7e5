package handlers

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"brokerage_ledger/internal/adapters/opener"
	importitems "brokerage_ledger/internal/repository/imports"
	"brokerage_ledger/internal/services/importer"
	"brokerage_ledger/internal/services/importer/processors"

	"github.com/minio/minio-go/v7"
)

type importRequest struct {
	Type           string `json:"type"`
	FilePath       string `json:"file_path"`
	BatchSize      int    `json:"batch_size"`
	TimeoutMin     int    `json:"timeout_minutes,omitempty"`
	ImportRecordID string `json:"import_record_id"`
}

// UploadImport stores a payments sheet (multipart field "file") in the
// imports bucket and registers it as an import record.
func (h *Handlers) UploadImport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, importer.DefaultMaxFileBytes+(1<<20))
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		h.Logger.Printf("[UPLOAD][ERR] parse multipart: %v", err)
		h.fail(w, http.StatusBadRequest, "bad multipart: "+err.Error())
		return
	}

	kind := r.FormValue("type")
	if kind == "" {
		kind = processors.PaymentsType
	}
	if _, ok := h.Registry[kind]; !ok {
		h.fail(w, http.StatusBadRequest, "unknown import type "+kind)
		return
	}

	f, fh, err := r.FormFile("file")
	if err != nil {
		h.Logger.Printf("[UPLOAD][ERR] missing file: %v", err)
		h.fail(w, http.StatusBadRequest, "file is required")
		return
	}
	defer f.Close()

	fname := path.Base(fh.Filename)
	key := fmt.Sprintf("imports/%d-%s", time.Now().UnixNano(), fname)
	bucket := h.S3.ImportsBucket

	size := fh.Size
	if size <= 0 {
		size = -1
	}

	info, err := h.S3.Client.PutObject(r.Context(), bucket, key, f, size, minio.PutObjectOptions{ContentType: fh.Header.Get("Content-Type")})
	if err != nil {
		h.Logger.Printf("[UPLOAD][ERR] s3 put: %v", err)
		h.fail(w, http.StatusBadGateway, "failed to store file: "+err.Error())
		return
	}

	s3path := fmt.Sprintf("s3://%s/%s", bucket, key)
	uid := s.UserID
	rec := importitems.Record{
		UserID:    &uid,
		Status:    importitems.RecordParsed,
		Type:      kind,
		Path:      &s3path,
		Bucket:    &bucket,
		Key:       &key,
		SizeBytes: &info.Size,
	}

	ins, err := importitems.InsertImportRecord(r.Context(), h.Mongo, rec)
	if err != nil {
		h.Logger.Printf("[UPLOAD][ERR] db insert: %v", err)
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.ok(w, http.StatusCreated, map[string]any{"id": ins.InsertedID, "path": s3path, "type": kind}, "File uploaded")
}

// RunImport starts an import in the background and answers right away.
func (h *Handlers) RunImport(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req importRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.Logger.Printf("[IMPORT][REQ][ERR] %v", err)
		h.failErr(w, err)
		return
	}
	if req.Type == "" {
		req.Type = processors.PaymentsType
	}
	if strings.TrimSpace(req.FilePath) == "" && req.ImportRecordID != "" {
		rec, err := importitems.FindImportRecordByID(r.Context(), h.Mongo, req.ImportRecordID)
		if err != nil {
			h.fail(w, http.StatusNotFound, "import record not found")
			return
		}
		if rec.Path != nil {
			req.FilePath = *rec.Path
		}
		req.Type = rec.Type
	}
	if strings.TrimSpace(req.FilePath) == "" {
		h.Logger.Printf("[IMPORT][REQ][ERR] file_path is required")
		h.fail(w, http.StatusBadRequest, "file_path or import_record_id is required")
		return
	}
	if req.BatchSize <= 0 {
		req.BatchSize = 500
	}

	reqCopy := req
	notify := h.notifier(s.UserID, "import")

	go func() {
		start := time.Now()

		httpOp := opener.NewHTTPOpener(h.HTTP, importer.DefaultMaxFileBytes)
		s3Op := opener.NewS3Opener(h.S3.Client)
		compound := opener.NewCompoundOpener(httpOp, s3Op, h.S3.ImportsBucket)

		svc := importer.NewService(compound, h.Registry, reqCopy.BatchSize)

		timeout := 15 * time.Minute
		if reqCopy.TimeoutMin > 0 {
			timeout = time.Duration(reqCopy.TimeoutMin) * time.Minute
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if reqCopy.ImportRecordID != "" {
			if err := importitems.UpdateImportRecordStatus(ctx, h.Mongo, reqCopy.ImportRecordID, importitems.RecordRunning); err != nil {
				h.Logger.Printf("[IMPORT][WARN][BG] mark running: %v", err)
			}
		}

		res, err := svc.Import(ctx, importer.Request{
			Type:           reqCopy.Type,
			FilePath:       reqCopy.FilePath,
			BatchSize:      reqCopy.BatchSize,
			ImportRecordID: reqCopy.ImportRecordID,
			Session:        s,
		})

		final := importitems.Result{Status: importitems.RecordDone, Count: res.RowsProcessed, Failed: res.RowsFailed, Err: err}
		if err != nil {
			final.Status = importitems.RecordFailed
			h.Logger.Printf("[IMPORT][ERR][BG] type=%q path=%q err=%v took=%s",
				reqCopy.Type, reqCopy.FilePath, err, time.Since(start))
			notify.Error(ctx, "Import failed: "+err.Error())
		} else {
			h.Logger.Printf("[IMPORT][OK][BG] type=%q src=%s fmt=%s rows=%d failed=%d bucket=%q key=%q size=%d took=%s",
				reqCopy.Type, res.Source, res.Format, res.RowsProcessed, res.RowsFailed, res.Bucket, res.Key, res.SizeBytes, time.Since(start))
			if res.RowsFailed > 0 {
				notify.Warning(ctx, fmt.Sprintf("Import finished: %d rows, %d failed", res.RowsProcessed, res.RowsFailed))
			} else {
				notify.Success(ctx, fmt.Sprintf("Import finished: %d rows", res.RowsProcessed))
			}
		}

		if reqCopy.ImportRecordID != "" {
			if err := importitems.FinishImportRecord(context.WithoutCancel(ctx), h.Mongo, reqCopy.ImportRecordID, final); err != nil {
				h.Logger.Printf("[IMPORT][ERR][BG] finish record: %v", err)
			}
		}
	}()

	h.JSON(w, http.StatusAccepted, envelope{OK: true, Message: "Import started", Data: map[string]any{
		"type":             req.Type,
		"file_path":        req.FilePath,
		"batch_size":       req.BatchSize,
		"import_record_id": req.ImportRecordID,
	}})
}

// GetImport returns an import record with its failed rows.
func (h *Handlers) GetImport(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	id := r.PathValue("id")
	rec, err := importitems.FindImportRecordByID(r.Context(), h.Mongo, id)
	if err != nil {
		h.fail(w, http.StatusNotFound, "import record not found")
		return
	}
	items, err := importitems.ListItems(r.Context(), h.Mongo, id, importitems.ItemFailed)
	if err != nil {
		h.Logger.Printf("[IMPORT][ERR] list items of %s: %v", id, err)
		h.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.ok(w, http.StatusOK, map[string]any{"record": rec, "failed_rows": items}, "")
}
