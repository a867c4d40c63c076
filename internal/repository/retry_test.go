package repository

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blogchat/internal/chat"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestTransientClassification(t *testing.T) {
	assert.True(t, transient(context.DeadlineExceeded))
	assert.True(t, transient(timeoutErr{}))
	assert.True(t, transient(&net.OpError{Op: "read", Err: timeoutErr{}}))
	assert.False(t, transient(errors.New("syntax error at or near")))
	assert.False(t, transient(chat.ErrNotFound))
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test.Op", func() error {
		calls++
		if calls < 2 {
			return timeoutErr{}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestWithRetryStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("duplicate key value")
	calls := 0
	err := withRetry(context.Background(), "test.Op", func() error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.NotErrorIs(t, err, chat.ErrTransientStore)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), "test.Op", func() error {
		calls++
		return timeoutErr{}
	})
	assert.ErrorIs(t, err, chat.ErrTransientStore)
	assert.Equal(t, retryAttempts, calls)
}

func TestWithRetryHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	calls := 0
	err := withRetry(ctx, "test.Op", func() error {
		calls++
		return timeoutErr{}
	})
	assert.ErrorIs(t, err, chat.ErrTransientStore)
	assert.Less(t, calls, retryAttempts+1)
}
