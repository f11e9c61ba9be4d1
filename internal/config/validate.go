package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // zone database for hosts without one
)

const (
	MinBatchSize = 25
	MaxBatchSize = 35

	DefaultTimezone       = "Europe/Paris"
	DefaultRolloverDelay  = 30 * time.Second
	DefaultItemTTL        = 10 * time.Minute
	DefaultLeaderboardTTL = 2 * time.Minute
)

var DefaultBoundary = Clock{Hour: 19}

// DefaultReminders ping 15 minutes before each Cup of the Day round (Paris time).
var DefaultReminders = []ReminderConfig{
	{Region: "europe", At: "18:45"},
	{Region: "america", At: "02:45"},
	{Region: "asia", At: "10:45"},
}

// TOTD is the resolved totd section.
type TOTD struct {
	Location      *time.Location
	Boundary      Clock
	RolloverDelay time.Duration
	BingoWeekday  time.Weekday
	Reminders     []Reminder
}

type Reminder struct {
	Region string
	At     Clock
}

// Resolve applies defaults and parses every field of the section.
func (c TOTDConfig) Resolve() (TOTD, error) {
	var out TOTD
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return out, fmt.Errorf("totd.timezone: %w", err)
	}
	out.Location = loc

	if out.Boundary, err = ParseClockOrDefault("totd.boundary", c.Boundary, DefaultBoundary); err != nil {
		return out, err
	}
	if out.RolloverDelay, err = ParseDurationOrDefault("totd.rollover_delay", c.RolloverDelay, DefaultRolloverDelay); err != nil {
		return out, err
	}
	if out.BingoWeekday, err = ParseWeekday("totd.bingo_weekday", c.BingoWeekday, time.Monday); err != nil {
		return out, err
	}

	rem := c.Reminders
	if rem == nil {
		rem = DefaultReminders
	}
	for i, r := range rem {
		region := strings.ToLower(strings.TrimSpace(r.Region))
		if region == "" {
			return out, fmt.Errorf("totd.reminders[%d].region: required", i)
		}
		at, err := ParseClock(fmt.Sprintf("totd.reminders[%d].at", i), r.At)
		if err != nil {
			return out, err
		}
		out.Reminders = append(out.Reminders, Reminder{Region: region, At: at})
	}
	return out, nil
}

// SchedulerLocation is scheduler.timezone, falling back to the totd timezone.
func (c *Config) SchedulerLocation() (*time.Location, error) {
	tz := strings.TrimSpace(c.Scheduler.Timezone)
	if tz == "" {
		tz = strings.TrimSpace(c.TOTD.Timezone)
	}
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: %w", err)
	}
	return loc, nil
}

var knownDrivers = map[string]bool{"": true, "memory": true, "file": true, "sqlite": true, "sqlite3": true, "none": true}

var knownLevels = map[string]bool{"": true, "trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate reports every problem found in cfg.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token: required"))
	}
	for i, id := range cfg.Telegram.OwnerUserIDs {
		if id <= 0 {
			add(fmt.Errorf("telegram.owner_user_ids[%d]: must be a positive user id", i))
		}
	}
	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)

	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Level))] {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if !knownLevels[strings.ToLower(strings.TrimSpace(cfg.Logging.Telegram.MinLevel))] {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", cfg.Logging.Telegram.MinLevel))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}
	if cfg.Logging.Telegram.Enabled && cfg.Telegram.OperatorChatID == 0 {
		add(errors.New("logging.telegram: needs telegram.operator_chat_id"))
	}

	for path, raw := range map[string]string{
		"diag.read_timeout":           cfg.Diag.ReadTimeout,
		"diag.write_timeout":          cfg.Diag.WriteTimeout,
		"diag.idle_timeout":           cfg.Diag.IdleTimeout,
		"task_engine.default_timeout": cfg.TaskEngine.DefaultTimeout,
		"task_engine.max_queue_delay": cfg.TaskEngine.MaxQueueDelay,
		"storage.busy_timeout":        cfg.Storage.BusyTimeout,
		"content.tmx_timeout":         cfg.Content.TMXTimeout,
		"content.item_ttl":            cfg.Content.ItemTTL,
		"content.leaderboard_ttl":     cfg.Content.LeaderboardTTL,
		"broadcast.batch_pause":       cfg.Broadcast.BatchPause,
	} {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	switch {
	case !knownDrivers[driver]:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	case (driver == "file" || driver == "sqlite" || driver == "sqlite3") && strings.TrimSpace(cfg.Storage.Path) == "":
		add(fmt.Errorf("storage.path: required for driver %q", driver))
	}

	if strings.TrimSpace(cfg.Content.UbiLogin) == "" || !strings.Contains(cfg.Content.UbiLogin, ":") {
		add(errors.New("content.ubi_login: required as email:password"))
	}
	if strings.TrimSpace(cfg.Content.OAuthID) == "" || strings.TrimSpace(cfg.Content.OAuthSecret) == "" {
		add(errors.New("content.oauth_id/oauth_secret: required"))
	}
	if cfg.Content.RequestsPerSecond < 0 {
		add(errors.New("content.requests_per_second: must be >= 0"))
	}

	if n := cfg.Broadcast.BatchSize; n != 0 && (n < MinBatchSize || n > MaxBatchSize) {
		add(fmt.Errorf("broadcast.batch_size: %d outside %d..%d", n, MinBatchSize, MaxBatchSize))
	}

	if cfg.TaskEngine.Workers < 0 || cfg.TaskEngine.QueueSize < 0 || cfg.TaskEngine.HistorySize < 0 || cfg.TaskEngine.RetryMax < 0 {
		add(errors.New("task_engine: counts must be >= 0"))
	}

	_, err = cfg.TOTD.Resolve()
	add(err)
	_, err = cfg.SchedulerLocation()
	add(err)

	return errors.Join(errs...)
}
