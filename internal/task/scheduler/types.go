package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"totdbot/internal/task/engine"
	logx "totdbot/pkg/logx"
)

type Config struct {
	Enabled  bool
	Timezone string // IANA name, e.g. "Europe/Paris"
}

type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type Job = func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string
	timeout time.Duration
	job     Job
	opt     TaskOptions
	state   *engine.RunState
	entryID cron.EntryID
}

type onceDef struct {
	at      time.Time
	timeout time.Duration
	job     Job
	ver     uint64
	timer   *time.Timer
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	enqMu       sync.Mutex
	lastEnqWarn map[string]time.Time

	tmu     sync.Mutex
	once    map[string]*onceDef
	onceSeq uint64
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Running bool
}

type Snapshot struct {
	Enabled  bool
	Timezone string

	Engine    engine.Snapshot
	Schedules []ScheduleInfo
}
