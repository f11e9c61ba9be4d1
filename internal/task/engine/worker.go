package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"totdbot/internal/eventbus"
	logx "totdbot/pkg/logx"
)

// slowTask is where a successful run gets logged at info instead of debug.
const slowTask = 750 * time.Millisecond

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// a closed stopCh wins over queued work
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t := <-queue:
			s.inFlight.Add(1)
			s.execOne(ctx, stopCh, t)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) execOne(ctx context.Context, stopCh <-chan struct{}, qt queuedTask) {
	start := time.Now()
	queueDelay := max(start.Sub(qt.enqueuedAt), 0)

	s.mu.Lock()
	maxDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()

	if maxDelay > 0 && queueDelay > maxDelay {
		qt.releaseState()
		s.onStaleDropped(start, qt.task, queueDelay)
		s.record(HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Error: "stale_queue_delay"})
		if qt.task.Done != nil {
			qt.task.Done(ErrStale)
		}
		return
	}

	log := s.log.With(logx.String("task", qt.task.Name), logx.String("id", qt.task.ID))
	log.Debug("task.started", logx.Duration("queue_delay", queueDelay))
	s.publish(eventbus.TaskStarted, start, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	attempts, err := s.runAttempts(ctx, stopCh, qt, log)
	qt.releaseState()

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, QueueDelay: queueDelay, Attempts: attempts}
	ev := TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		ev.Error = item.Error
		log.Warn("task.failed", logx.Err(err), logx.Duration("dur", dur), logx.Int("attempts", attempts))
		s.publish(eventbus.TaskFailed, time.Now(), ev)
		s.met.TaskFinished(qt.task.Name, "error")
	} else {
		if dur >= slowTask {
			log.Info("task.completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
		} else {
			log.Debug("task.completed", logx.Duration("dur", dur), logx.Int("attempts", attempts))
		}
		s.publish(eventbus.TaskFinished, time.Now(), ev)
		s.met.TaskFinished(qt.task.Name, "ok")
	}
	s.record(item)

	if qt.task.Done != nil {
		qt.task.Done(err)
	}
}

func (s *Service) runAttempts(ctx context.Context, stopCh <-chan struct{}, qt queuedTask, log logx.Logger) (attempts int, err error) {
	maxAttempts := 1 + qt.opt.RetryMax
	for attempts = 1; attempts <= maxAttempts; attempts++ {
		err = runGuarded(ctx, qt.timeout, qt.task.Run, log)
		if err == nil {
			return attempts, nil
		}
		if inner, ok := finalError(err); ok {
			return attempts, inner
		}
		if attempts == maxAttempts {
			break
		}

		delay := backoffDelayWithHint(qt.opt, attempts, err)
		log.Debug("task retry scheduled", logx.Int("attempt", attempts+1), logx.Duration("delay", delay), logx.Err(err))
		tmr := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return attempts, ctx.Err()
		case <-stopCh:
			tmr.Stop()
			return attempts, ErrStopping
		case <-tmr.C:
		}
	}
	return min(attempts, maxAttempts), err
}

// runGuarded turns a task panic into an error so one bad task cannot kill a worker.
func runGuarded(ctx context.Context, timeout time.Duration, run func(context.Context) error, log logx.Logger) (err error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			log.Error("task.panic", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	return run(ctx)
}

func backoffDelayWithHint(opt TaskOptions, retry int, err error) time.Duration {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return jitter(min(max(ra.RetryAfter(), 0), opt.RetryMaxDelay), opt)
	}
	return backoffDelay(opt, retry)
}

func backoffDelay(opt TaskOptions, retry int) time.Duration {
	d := opt.RetryBase
	for i := 1; i < retry && d < opt.RetryMaxDelay; i++ {
		d *= 2
	}
	return jitter(min(d, opt.RetryMaxDelay), opt)
}

func jitter(d time.Duration, opt TaskOptions) time.Duration {
	if opt.RetryJitter > 0 && d > 0 {
		r := (rand.Float64()*2 - 1) * opt.RetryJitter
		d = time.Duration(float64(d) * (1 + r))
	}
	return min(max(d, 0), opt.RetryMaxDelay)
}
