package config

// Config is the whole process configuration. Every duration is a Go duration
// string ("500ms", "10s", "1m"); every clock time is "HH:MM" in totd.timezone.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Diag       DiagConfig       `json:"diag,omitempty"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	TaskEngine TaskEngineConfig `json:"task_engine,omitempty"`
	Storage    StorageConfig    `json:"storage"`
	Content    ContentConfig    `json:"content"`
	Broadcast  BroadcastConfig  `json:"broadcast,omitempty"`
	TOTD       TOTDConfig       `json:"totd"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// OperatorChatID receives operator reports and the telegram log sink.
	OperatorChatID int64  `json:"operator_chat_id,omitempty"`
	PollTimeout    string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// DiagConfig controls the metrics + pprof HTTP server. Binding to a
// non-loopback address needs a token or allow_insecure.
type DiagConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default 127.0.0.1:9464
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Timezone of cron triggers; defaults to totd.timezone.
	Timezone string `json:"timezone,omitempty"`
}

// TaskEngineConfig controls task execution. Zero values take the engine defaults
// (2 workers, queue 256, history 200, 3 retries).
type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	RetryMax       int    `json:"retry_max,omitempty"`
}

// StorageConfig selects the kv driver.
//
//	"storage": { "driver": "sqlite", "path": "./totdbot.db" }
type StorageConfig struct {
	Driver            string `json:"driver"`
	Path              string `json:"path"`
	BusyTimeout       string `json:"busy_timeout,omitempty"`
	CompressThreshold int    `json:"compress_threshold,omitempty"`
}

type ContentConfig struct {
	UbiLogin    string `json:"ubi_login"` // "email:password", never logged
	OAuthID     string `json:"oauth_id"`
	OAuthSecret string `json:"oauth_secret"`
	UserAgent   string `json:"user_agent,omitempty"`

	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
	TMXTimeout        string  `json:"tmx_timeout,omitempty"`

	ItemTTL        string `json:"item_ttl,omitempty"`
	LeaderboardTTL string `json:"leaderboard_ttl,omitempty"`
}

type BroadcastConfig struct {
	BatchSize  int    `json:"batch_size,omitempty"`
	BatchPause string `json:"batch_pause,omitempty"`
}

type TOTDConfig struct {
	Timezone string `json:"timezone,omitempty"` // default Europe/Paris
	// Boundary is the local time a new item is released.
	Boundary string `json:"boundary,omitempty"` // default 19:00
	// RolloverDelay waits for the upstream to publish after the boundary.
	RolloverDelay string `json:"rollover_delay,omitempty"`
	// BingoWeekday is the weekday boards are regenerated at the boundary.
	BingoWeekday string           `json:"bingo_weekday,omitempty"` // default monday
	Reminders    []ReminderConfig `json:"reminders,omitempty"`
}

type ReminderConfig struct {
	Region string `json:"region"`
	At     string `json:"at"`
}
