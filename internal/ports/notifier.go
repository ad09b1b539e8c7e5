package ports

import "context"

// Notifier is the user facing message sink. Calls never fail from the
// caller's point of view.
type Notifier interface {
	Success(ctx context.Context, msg string)
	Warning(ctx context.Context, msg string)
	Error(ctx context.Context, msg string)
}
