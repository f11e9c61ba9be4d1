package config

import (
	"reflect"
	"sort"
	"strings"

	logx "totdbot/pkg/logx"
)

// SummarizeConfigChange returns the changed sections and safe structured
// fields for logging. Secrets (tokens, logins) are only reported as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 24)
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.OperatorChatID != nt.OperatorChatID ||
		!reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.Bool("telegram.operator_chat_set", nt.OperatorChatID != 0),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	od, nd := oldCfg.Diag, newCfg.Diag
	od.Token, nd.Token = "", ""
	if od != nd || set(oldCfg.Diag.Token) != set(newCfg.Diag.Token) {
		changed = append(changed, "diag")
		attrs = append(attrs,
			logx.Bool("diag.enabled", nd.Enabled),
			logx.String("diag.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("diag.pprof", nd.Pprof),
			logx.Bool("diag.token_set", set(newCfg.Diag.Token)),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	if oldCfg.TaskEngine != newCfg.TaskEngine {
		te := newCfg.TaskEngine
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", te.DefaultTimeout),
			logx.Int("task_engine.retry_max", te.RetryMax),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", set(newCfg.Storage.Path)),
		)
	}

	oc, nc := oldCfg.Content, newCfg.Content
	credsChanged := oc.UbiLogin != nc.UbiLogin || oc.OAuthID != nc.OAuthID || oc.OAuthSecret != nc.OAuthSecret
	oc.UbiLogin, oc.OAuthID, oc.OAuthSecret = "", "", ""
	nc.UbiLogin, nc.OAuthID, nc.OAuthSecret = "", "", ""
	if credsChanged || oc != nc {
		changed = append(changed, "content")
		attrs = append(attrs,
			logx.Bool("content.credentials_changed", credsChanged),
			logx.String("content.item_ttl", nc.ItemTTL),
			logx.String("content.leaderboard_ttl", nc.LeaderboardTTL),
		)
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.Int("broadcast.batch_size", newCfg.Broadcast.BatchSize),
			logx.String("broadcast.batch_pause", newCfg.Broadcast.BatchPause),
		)
	}

	if !reflect.DeepEqual(oldCfg.TOTD, newCfg.TOTD) {
		changed = append(changed, "totd")
		attrs = append(attrs,
			logx.String("totd.timezone", newCfg.TOTD.Timezone),
			logx.String("totd.boundary", newCfg.TOTD.Boundary),
			logx.Int("totd.reminders", len(newCfg.TOTD.Reminders)),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired lists changed settings that only take effect after a restart.
// Owners, the operator chat, logging, diag, the engine and broadcast batching
// are applied live.
func RestartRequired(oldCfg, newCfg *Config) []string {
	if oldCfg == nil || newCfg == nil {
		return nil
	}
	var out []string
	if oldCfg.Telegram.Token != newCfg.Telegram.Token || oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	if oldCfg.Scheduler.Enabled != newCfg.Scheduler.Enabled {
		out = append(out, "scheduler.enabled")
	}
	if oldCfg.Storage != newCfg.Storage {
		out = append(out, "storage")
	}
	if !reflect.DeepEqual(oldCfg.Content, newCfg.Content) {
		out = append(out, "content")
	}
	if !reflect.DeepEqual(oldCfg.TOTD, newCfg.TOTD) {
		out = append(out, "totd")
	}
	return out
}
