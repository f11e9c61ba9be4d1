package broadcast

import (
	"context"
	"sync"
	"time"

	"totdbot/internal/metrics"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

const (
	DefaultBatchSize  = 30
	DefaultBatchPause = time.Second
)

type Config struct {
	// BatchSize is the number of sends between two pauses.
	BatchSize  int
	BatchPause time.Duration
}

func (c Config) normalized() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchPause < 0 {
		c.BatchPause = 0
	}
	return c
}

// Sender is the rich-send half of the chat adapter.
type Sender interface {
	Send(ctx context.Context, to kit.ChatTarget, msg *kit.OutMessage) (kit.Sent, error)
}

// Remover drops a subscription after a permanent failure.
type Remover interface {
	Delete(ctx context.Context, groupID int64) error
}

// Delivery is one successful send.
type Delivery struct {
	GroupID int64
	Ref     kit.MessageRef
}

// Report summarizes one distribution.
type Report struct {
	ID        string
	Name      string
	Total     int
	Sent      int
	Removed   int
	Transient int
	Unknown   int
	Pauses    int
	Refs      []Delivery
	// Failures lists group ids that did not receive the message (bounded).
	Failures  []int64
	StartedAt time.Time
	DoneAt    time.Time
}

func (r Report) Failed() int { return r.Removed + r.Transient + r.Unknown }

type Option func(s *Service)

// WithSleep replaces the pause implementation, mainly for tests.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithOperator sets the channel that receives unexpected-error reports.
func WithOperator(op kit.OperatorChannel) Option {
	return func(s *Service) { s.operator = op }
}

type Service struct {
	mu sync.Mutex

	cfg      Config
	sender   Sender
	subs     Remover
	operator kit.OperatorChannel
	metrics  *metrics.Manager
	log      logx.Logger
	sleep    func(ctx context.Context, d time.Duration) error

	statusMu sync.RWMutex
	status   map[string]*Report
	lastID   string
	// statusMax/statusTTL bound in-memory report retention.
	statusMax int
	statusTTL time.Duration
}
