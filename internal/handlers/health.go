package handlers

import (
	"context"
	"net/http"
	"time"
)

type healthResp struct {
	OK     bool     `json:"ok"`
	Errors []string `json:"errors,omitempty"`
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var errs []string

	if err := h.Postgres.Ping(ctx); err != nil {
		errs = append(errs, "postgres: "+err.Error())
	}
	if err := h.Mongo.Ping(ctx); err != nil {
		errs = append(errs, "mongo: "+err.Error())
	}

	if h.S3 == nil || h.S3.Client == nil {
		errs = append(errs, "s3 not initialized")
	} else {
		for _, b := range h.S3.Buckets() {
			if ok, err := h.S3.Client.BucketExists(ctx, b); err != nil {
				errs = append(errs, "s3 bucket check failed: "+err.Error())
			} else if !ok {
				errs = append(errs, `s3 bucket "`+b+`" not found`)
			}
		}
	}

	// redis is optional: report it only when configured
	if h.Redis != nil {
		if err := h.Redis.Client.Ping(ctx).Err(); err != nil {
			errs = append(errs, "redis ping failed: "+err.Error())
		}
	}

	resp := healthResp{OK: len(errs) == 0}
	code := http.StatusOK
	if len(errs) > 0 {
		resp.Errors = errs
		code = http.StatusInternalServerError
	}
	h.JSON(w, code, resp)
}
