package logx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "totdbot/internal/transport"
)

// ErrNoOperatorTarget is returned by Notify when no operator chat is configured.
var ErrNoOperatorTarget = errors.New("logx: operator chat not configured")

type Config struct {
	Level    string
	Console  bool
	File     FileConfig
	Operator OperatorConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// OperatorConfig controls the operator chat sink.
type OperatorConfig struct {
	Enabled    bool
	ThreadID   int
	MinLevel   string
	RatePerSec int
}

// Service owns the log sinks and can swap them at runtime.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	sender  kit.TextSender
	queue   chan operatorItem
	once    sync.Once
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	dropped atomic.Uint64

	// guarded by mu
	chatID   int64
	threadID int
	limiter  *rate.Limiter
	minLevel zerolog.Level
}

type operatorItem struct {
	to  kit.ChatTarget
	msg string
}

// New creates the logging service, applies cfg and returns the root Logger.
func New(cfg Config, sender kit.TextSender) (*Service, Logger) {
	setGlobals()

	s := &Service{
		cfg:      cfg,
		sender:   sender,
		queue:    make(chan operatorItem, 256),
		threadID: cfg.Operator.ThreadID,
	}
	s.root.Store(zerolog.New(newConsoleWriter(Stdout())).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger())
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetOperatorTarget sets the operator chat used by the sink and by Notify.
func (s *Service) SetOperatorTarget(chatID int64, threadID int) {
	s.mu.Lock()
	s.chatID = chatID
	if threadID != 0 {
		s.threadID = threadID
	}
	s.mu.Unlock()
}

// Notify sends text to the operator chat without going through the level filter.
// It never blocks: when the queue is full the message is dropped.
func (s *Service) Notify(ctx context.Context, text string) error {
	_ = ctx
	s.mu.Lock()
	chatID := s.chatID
	threadID := s.threadID
	s.mu.Unlock()
	if chatID == 0 || s.sender == nil {
		return ErrNoOperatorTarget
	}
	s.startWorker()
	s.enqueue(kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, truncate(text, 3500))
	return nil
}

func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply swaps outputs and levels at runtime. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = parseLevel(cfg.Operator.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.Operator.RatePerSec)
	s.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	if cfg.Operator.ThreadID != 0 {
		s.threadID = cfg.Operator.ThreadID
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./totdbot.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Operator.Enabled {
		s.startWorkerLocked()
		writers = append(writers, &operatorWriter{svc: s})
		if s.chatID == 0 {
			fmt.Fprintln(Stderr(), "logx: operator logging enabled but telegram.group_log is not set")
		}
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(parseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	s.root.Store(zl)
}

func (s *Service) startWorker() {
	s.mu.Lock()
	s.startWorkerLocked()
	s.mu.Unlock()
}

// startWorkerLocked starts the single delivery goroutine. Call with s.mu held.
func (s *Service) startWorkerLocked() {
	s.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(ctx)
		}()
	})
}

func (s *Service) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-s.queue:
			if s.sender == nil {
				continue
			}
			_, _ = s.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (s *Service) enqueue(to kit.ChatTarget, msg string) {
	select {
	case s.queue <- operatorItem{to: to, msg: msg}:
	default:
		s.dropped.Add(1)
	}
}
