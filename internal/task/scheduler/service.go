package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"totdbot/internal/task/engine"
	logx "totdbot/pkg/logx"
)

func New(cfg Config, eng *engine.Service, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "scheduler")),
		engine: eng,
		// 5-field specs, or 6 with a leading seconds field.
		parser:      cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		once:        map[string]*onceDef{},
		lastEnqWarn: map[string]time.Time{},
	}
	s.loc = s.loadLocationLocked()
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Location is the zone schedules are evaluated in.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

// Apply swaps the config. A timezone change re-registers every cron entry.
func (s *Service) Apply(ctx context.Context, cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	wasEnabled := s.cfg.Enabled
	s.cfg = cfg
	running := s.c != nil
	if !running {
		s.loc = s.loadLocationLocked()
	} else if oldTZ != strings.TrimSpace(cfg.Timezone) && cfg.Enabled {
		s.restartLocked()
	}
	s.mu.Unlock()

	switch {
	case running && !cfg.Enabled:
		s.Stop(ctx)
	case !running && cfg.Enabled && !wasEnabled:
		s.Start(ctx)
	}
}

// Start begins triggering and re-arms pending one-shot timers.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()

	s.tmu.Lock()
	for name, d := range s.once {
		s.armOnceLocked(name, d)
	}
	s.tmu.Unlock()

	s.log.Info("scheduler started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering. One-shot definitions survive and re-arm on the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}

	s.tmu.Lock()
	for _, d := range s.once {
		if d.timer != nil {
			d.timer.Stop()
			d.timer = nil
		}
	}
	s.tmu.Unlock()

	if c != nil {
		s.log.Info("scheduler stopped")
	}
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	s.loc = s.loadLocationLocked()
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		s.defs[i].entryID = 0
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Timezone: s.loc.String()}
	c := s.c
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout, Running: d.state.Running()}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()

	s.tmu.Lock()
	for name, d := range s.once {
		snap.Schedules = append(snap.Schedules, ScheduleInfo{Name: name, Spec: "@once", Timeout: d.timeout, Next: d.at})
	}
	s.tmu.Unlock()

	if s.engine != nil {
		snap.Engine = s.engine.Snapshot()
	}
	return snap
}
