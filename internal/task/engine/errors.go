package engine

import (
	"errors"
	"fmt"
	"time"
)

// Enqueue and run outcomes that never reach a task's Run.
var (
	ErrDisabled    = errors.New("engine: background jobs are disabled")
	ErrStopped     = errors.New("engine: not running")
	ErrStopping    = errors.New("engine: shutting down")
	ErrQueueFull   = errors.New("engine: job queue is full")
	ErrOverlapSkip = errors.New("engine: job already queued or running")
	ErrStale       = errors.New("engine: job expired before a worker picked it up")
)

// attemptError tells the retry loop what to do after a failed attempt.
type attemptError struct {
	err   error
	final bool
	wait  time.Duration
}

func (e *attemptError) Error() string {
	if e.final {
		return "final attempt: " + e.err.Error()
	}
	return fmt.Sprintf("retry in %s: %v", e.wait, e.err)
}

func (e *attemptError) Unwrap() error { return e.err }

// NoRetry marks err as final, e.g. a content API 404 or a chat that removed the bot.
// The engine returns the inner error without further attempts.
func NoRetry(err error) error {
	if err == nil {
		return nil
	}
	return &attemptError{err: err, final: true}
}

// IsNoRetry reports whether err was marked with NoRetry.
func IsNoRetry(err error) bool {
	_, ok := finalError(err)
	return ok
}

// finalError unwraps a NoRetry mark.
func finalError(err error) (error, bool) {
	var ae *attemptError
	if errors.As(err, &ae) && ae.final {
		return ae.err, true
	}
	return nil, false
}

// RetryAfter asks for the next attempt after d, typically a Telegram flood-wait
// or an HTTP Retry-After. The worker caps d at RetryMaxDelay and adds jitter.
func RetryAfter(err error, d time.Duration) error {
	if err == nil {
		return nil
	}
	return &attemptError{err: err, wait: max(d, 0)}
}

// RetryAfterError is implemented by errors that carry their own retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

func (e *attemptError) RetryAfter() time.Duration { return e.wait }
