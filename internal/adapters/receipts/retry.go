package receipts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/minio/minio-go/v7"
)

// RetryPolicy bounds how often an upload is attempted. Backoff doubles after
// every failed attempt.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.Backoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = time.Minute
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}

// Do runs fn until it succeeds, returns a permanent error or the attempts
// run out.
func (p RetryPolicy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := p.attempts()
	calls := 0
	var last error
	err := backoff.RetryNotify(func() error {
		calls++
		last = fn(ctx)
		return last
	}, p.backOff(ctx), func(err error, next time.Duration) {
		log.Printf("[RECEIPTS][RETRY][WARN] op=%s attempt=%d/%d next_in=%s err=%v", name, calls, attempts, next, err)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if ctx.Err() != nil && !errors.Is(last, ctx.Err()) {
			return fmt.Errorf("%s: %w (last error: %v)", name, ctx.Err(), last)
		}
	}
	var perm *backoff.PermanentError
	if errors.As(last, &perm) {
		return fmt.Errorf("%s rejected: %w", name, perm.Err)
	}
	return fmt.Errorf("%s failed after %d attempts: %w", name, calls, err)
}

// permanent marks storage answers that another attempt cannot change.
func permanent(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "AccessDenied", "NoSuchBucket", "InvalidBucketName", "InvalidAccessKeyId", "SignatureDoesNotMatch", "EntityTooLarge":
		return backoff.Permanent(err)
	}
	return err
}
