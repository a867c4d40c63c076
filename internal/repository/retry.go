package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/blogchat/internal/chat"
	"github.com/blogchat/internal/logger"
)

const (
	retryAttempts = 3
	retryBackoff  = 150 * time.Millisecond
)

// transient reports whether err is a connectivity or timeout failure worth
// retrying, as opposed to a query error that will fail again.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return pgconn.SafeToRetry(err) || pgconn.Timeout(err)
}

// withRetry runs fn up to retryAttempts times, backing off between attempts.
// Non-transient errors return immediately; a transient error that survives
// all attempts is surfaced as chat.ErrTransientStore.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		err = fn()
		if err == nil || !transient(err) {
			return err
		}
		logger.Errorf("%s transient failure (attempt %d/%d): %v", op, attempt, retryAttempts, err)
		if attempt == retryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %v: %w", op, ctx.Err(), chat.ErrTransientStore)
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s: %v: %w", op, err, chat.ErrTransientStore)
}
