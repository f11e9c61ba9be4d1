package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"totdbot/internal/task/engine"
	logx "totdbot/pkg/logx"
)

// ErrUnknownSchedule is returned by Trigger and Run for names never registered.
var ErrUnknownSchedule = errors.New("unknown schedule")

const enqueueWarnThrottle = 5 * time.Second

// AddCron registers job under name with a cron spec (5 fields, 6 with seconds,
// or a descriptor like "@hourly"). Scheduled runs skip while a previous run is
// still in flight.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	return s.AddCronOpt(name, spec, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddCronOpt(name, spec string, timeout time.Duration, opt TaskOptions, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if job == nil {
		return "", errors.New("job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return "", fmt.Errorf("schedule %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// upsert by name, also across kinds
	state := s.removeScheduleLocked(name)
	s.removeOnce(name)
	if state == nil {
		state = &engine.RunState{}
	}
	s.defs = append(s.defs, scheduleDef{name: name, spec: spec, timeout: timeout, job: job, opt: opt, state: state})
	if s.c == nil {
		return name, nil
	}
	d := &s.defs[len(s.defs)-1]
	if err := s.addCronLocked(d); err != nil {
		return name, err
	}
	s.log.Debug("schedule registered",
		logx.String("name", name),
		logx.String("spec", spec),
		logx.Duration("timeout", timeout),
		logx.Time("next", s.c.Entry(d.entryID).Next),
	)
	return name, nil
}

// AddDaily runs job every day at "HH:MM" or "HH:MM:SS" in the scheduler timezone.
func (s *Service) AddDaily(name, at string, timeout time.Duration, job Job) (string, error) {
	return s.AddDailyOpt(name, at, timeout, TaskOptions{Overlap: OverlapSkipIfRunning}, job)
}

func (s *Service) AddDailyOpt(name, at string, timeout time.Duration, opt TaskOptions, job Job) (string, error) {
	h, m, sec, err := parseClock(at)
	if err != nil {
		return "", err
	}
	return s.AddCronOpt(name, fmt.Sprintf("%d %d %d * * *", sec, m, h), timeout, opt, job)
}

// AddWeekly runs job once a week on weekday at "HH:MM" or "HH:MM:SS".
func (s *Service) AddWeekly(name string, weekday time.Weekday, at string, timeout time.Duration, job Job) (string, error) {
	h, m, sec, err := parseClock(at)
	if err != nil {
		return "", err
	}
	return s.AddCron(name, fmt.Sprintf("%d %d %d * * %d", sec, m, h, int(weekday)), timeout, job)
}

// AddOnce runs job a single time at at. A time in the past fires immediately.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("name required")
	}
	if at.IsZero() {
		return "", errors.New("at required")
	}
	if job == nil {
		return "", errors.New("job required")
	}

	s.mu.Lock()
	s.removeScheduleLocked(name)
	running := s.c != nil
	s.mu.Unlock()

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if prev := s.once[name]; prev != nil && prev.timer != nil {
		prev.timer.Stop()
	}
	s.onceSeq++
	d := &onceDef{at: at, timeout: timeout, job: job, ver: s.onceSeq}
	s.once[name] = d
	if running {
		s.armOnceLocked(name, d)
	}
	return name, nil
}

// Remove drops every schedule called name. It reports whether anything was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeScheduleLocked(name) != nil
	s.mu.Unlock()
	if s.removeOnce(name) {
		removed = true
	}
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// Trigger enqueues a registered cron schedule now. It shares overlap state
// with timed runs, so it returns engine.ErrOverlapSkip while one is in flight.
func (s *Service) Trigger(name string) error {
	t, err := s.taskFor(name)
	if err != nil {
		return err
	}
	return s.engine.Enqueue(t)
}

// Run is Trigger that waits for the run to finish and returns its result.
func (s *Service) Run(ctx context.Context, name string) error {
	t, err := s.taskFor(name)
	if err != nil {
		return err
	}
	return s.engine.Do(ctx, t)
}

func (s *Service) taskFor(name string) (engine.Task, error) {
	if s.engine == nil {
		return engine.Task{}, engine.ErrDisabled
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.defs {
		if d.name == name {
			return d.task(), nil
		}
	}
	return engine.Task{}, fmt.Errorf("%w: %s", ErrUnknownSchedule, name)
}

func (d scheduleDef) task() engine.Task {
	return engine.Task{Name: d.name, Timeout: d.timeout, Run: d.job, Opt: d.opt, State: d.state}
}

// removeScheduleLocked drops all defs named name and returns the run state of
// the last one, so a re-registration keeps gating against an in-flight run.
func (s *Service) removeScheduleLocked(name string) *engine.RunState {
	var state *engine.RunState
	n := 0
	for _, d := range s.defs {
		if d.name != name {
			s.defs[n] = d
			n++
			continue
		}
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		state = d.state
	}
	s.defs = s.defs[:n]
	return state
}

func (s *Service) removeOnce(name string) bool {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	d, ok := s.once[name]
	if !ok {
		return false
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	delete(s.once, name)
	return true
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	task := d.task()
	id, err := s.c.AddJob(d.spec, cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		if err := s.engine.Enqueue(task); err != nil {
			s.reportEnqueueError(task.Name, err)
		}
	}))
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// armOnceLocked starts the timer for d. Call with s.tmu held.
func (s *Service) armOnceLocked(name string, d *onceDef) {
	ver := d.ver
	d.timer = time.AfterFunc(max(time.Until(d.at), 0), func() {
		s.tmu.Lock()
		cur := s.once[name]
		if cur == nil || cur.ver != ver {
			// replaced or removed
			s.tmu.Unlock()
			return
		}
		delete(s.once, name)
		s.tmu.Unlock()

		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{Name: name, Timeout: d.timeout, Run: d.job})
		if err != nil {
			s.reportEnqueueError(name, err)
		}
	})
}

func (s *Service) reportEnqueueError(name string, err error) {
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.Err(err))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	last := s.lastEnqWarn[name]
	if !last.IsZero() && now.Sub(last) < enqueueWarnThrottle {
		s.enqMu.Unlock()
		return
	}
	s.lastEnqWarn[name] = now
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task", logx.String("schedule", name), logx.Err(err))
}

func parseClock(v string) (hour, minute, second int, err error) {
	v = strings.TrimSpace(v)
	parts := strings.Split(v, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid time %q, expected HH:MM or HH:MM:SS", v)
	}
	limits := []int{23, 59, 59}
	out := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > limits[i] {
			return 0, 0, 0, fmt.Errorf("invalid time %q", v)
		}
		out[i] = n
	}
	return out[0], out[1], out[2], nil
}
