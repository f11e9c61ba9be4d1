package totd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"totdbot/internal/task/engine"
	"totdbot/internal/task/scheduler"
	logx "totdbot/pkg/logx"
)

// rolloverOptions retry for about half an hour while the new item is not out yet.
var rolloverOptions = scheduler.TaskOptions{
	Overlap:       engine.OverlapSkipIfRunning,
	RetryMax:      12,
	RetryBase:     15 * time.Second,
	RetryMaxDelay: 3 * time.Minute,
}

// clockAfter returns the "HH:MM:SS" that lies d after hour:minute.
func clockAfter(hour, minute int, d time.Duration) string {
	t := time.Date(2000, 1, 1, hour, minute, 0, 0, time.UTC).Add(d)
	return t.Format("15:04:05")
}

// RegisterSchedules installs the daily rollover, the weekly bingo rollover and
// every configured reminder on the scheduler.
func (s *Session) RegisterSchedules() error {
	sch := s.d.Scheduler
	if sch == nil {
		return errors.New("totd: no scheduler")
	}

	at := clockAfter(s.boundaryHour, s.boundaryMin, s.cfg.RolloverDelay)
	if _, err := sch.AddDailyOpt(RolloverTask, at, s.cfg.RolloverTimeout, rolloverOptions, s.Rollover); err != nil {
		return fmt.Errorf("schedule rollover: %w", err)
	}

	bingoAt := clockAfter(s.boundaryHour, s.boundaryMin, 0)
	if _, err := sch.AddWeekly(BingoTask, s.cfg.BingoWeekday, bingoAt, s.cfg.RolloverTimeout, s.RolloverBingo); err != nil {
		return fmt.Errorf("schedule bingo: %w", err)
	}

	for _, r := range s.cfg.Reminders {
		region := strings.ToLower(strings.TrimSpace(r.Region))
		if region == "" {
			continue
		}
		job := func(ctx context.Context) error { return s.Remind(ctx, region) }
		if _, err := sch.AddDaily(remindPrefix+region, r.At, time.Minute, job); err != nil {
			return fmt.Errorf("schedule %s reminder: %w", region, err)
		}
	}
	s.log.Info("schedules registered",
		logx.String("rollover_at", at), logx.String("bingo_at", bingoAt), logx.Int("reminders", len(s.cfg.Reminders)))
	return nil
}

// Regions lists the configured reminder regions.
func (s *Session) Regions() []string {
	out := make([]string, 0, len(s.cfg.Reminders))
	for _, r := range s.cfg.Reminders {
		if region := strings.ToLower(strings.TrimSpace(r.Region)); region != "" {
			out = append(out, region)
		}
	}
	return out
}
