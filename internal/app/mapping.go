package app

import (
	"fmt"
	"strings"
	"time"

	"totdbot/internal/broadcast"
	"totdbot/internal/config"
	"totdbot/internal/content"
	"totdbot/internal/observability/diag"
	"totdbot/internal/storage"
	"totdbot/internal/task/engine"
	"totdbot/internal/task/scheduler"
	"totdbot/internal/totd"
	telegram "totdbot/internal/transport/telegram/adapter"
	logx "totdbot/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Operator: logx.OperatorConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapAdapter(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: poll}, nil
}

func mapStorage(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "none" {
		return storage.Config{}, fmt.Errorf("storage.driver: none is not supported, the bot needs a store")
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:            driver,
		Path:              strings.TrimSpace(sc.Path),
		BusyTimeout:       busy,
		CompressThreshold: sc.CompressThreshold,
	}, nil
}

// mapEngine fills zero values with the engine defaults (2 workers, queue 256,
// history 200, 3 retries). The engine runs whenever the scheduler does.
func mapEngine(cfg *config.Config) (engine.Config, error) {
	te := cfg.TaskEngine
	out := engine.Config{
		Enabled:     cfg.Scheduler.Enabled,
		Workers:     te.Workers,
		QueueSize:   te.QueueSize,
		HistorySize: te.HistorySize,
		RetryMax:    te.RetryMax,
	}
	if out.Workers <= 0 {
		out.Workers = 2
	}
	if out.QueueSize <= 0 {
		out.QueueSize = 256
	}
	if out.HistorySize <= 0 {
		out.HistorySize = 200
	}
	if out.RetryMax <= 0 {
		out.RetryMax = 3
	}
	var err error
	if out.DefaultTimeout, err = config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapScheduler(cfg *config.Config) (scheduler.Config, error) {
	loc, err := cfg.SchedulerLocation()
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{Enabled: cfg.Scheduler.Enabled, Timezone: loc.String()}, nil
}

func mapDiag(cfg *config.Config) (diag.Config, error) {
	d := cfg.Diag
	out := diag.Config{
		Enabled:              d.Enabled,
		Addr:                 strings.TrimSpace(d.Addr),
		Token:                d.Token,
		AllowInsecure:        d.AllowInsecure,
		Pprof:                d.Pprof,
		MutexProfileFraction: d.MutexProfileFraction,
		BlockProfileRate:     d.BlockProfileRate,
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationField("diag.read_timeout", d.ReadTimeout); err != nil {
		return diag.Config{}, err
	}
	if out.WriteTimeout, err = config.ParseDurationField("diag.write_timeout", d.WriteTimeout); err != nil {
		return diag.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationField("diag.idle_timeout", d.IdleTimeout); err != nil {
		return diag.Config{}, err
	}
	return out, nil
}

func mapBroadcast(cfg *config.Config) (broadcast.Config, error) {
	pause, err := config.ParseDurationOrDefault("broadcast.batch_pause", cfg.Broadcast.BatchPause, time.Second)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{BatchSize: cfg.Broadcast.BatchSize, BatchPause: pause}, nil
}

func mapContent(cfg *config.Config, t config.TOTD) (content.Config, error) {
	c := cfg.Content
	tmx, err := config.ParseDurationField("content.tmx_timeout", c.TMXTimeout)
	if err != nil {
		return content.Config{}, err
	}
	return content.Config{
		UbiLogin:          c.UbiLogin,
		OAuthID:           c.OAuthID,
		OAuthSecret:       c.OAuthSecret,
		UserAgent:         c.UserAgent,
		RequestsPerSecond: c.RequestsPerSecond,
		TMXTimeout:        tmx,
		Location:          t.Location,
		BoundaryHour:      t.Boundary.Hour,
	}, nil
}

func mapTOTD(cfg *config.Config) (totd.Config, error) {
	t, err := cfg.TOTD.Resolve()
	if err != nil {
		return totd.Config{}, err
	}
	out := totd.Config{
		Location:      t.Location,
		Boundary:      t.Boundary.String(),
		RolloverDelay: t.RolloverDelay,
		BingoWeekday:  t.BingoWeekday,
	}
	for _, r := range t.Reminders {
		out.Reminders = append(out.Reminders, totd.Reminder{Region: r.Region, At: r.At.String()})
	}
	if out.ItemTTL, err = config.ParseDurationOrDefault("content.item_ttl", cfg.Content.ItemTTL, config.DefaultItemTTL); err != nil {
		return totd.Config{}, err
	}
	if out.LeaderboardTTL, err = config.ParseDurationOrDefault("content.leaderboard_ttl", cfg.Content.LeaderboardTTL, config.DefaultLeaderboardTTL); err != nil {
		return totd.Config{}, err
	}
	return out, nil
}
