// Package app builds every component from the config file and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"totdbot/internal/bingo"
	"totdbot/internal/broadcast"
	"totdbot/internal/cache"
	"totdbot/internal/config"
	"totdbot/internal/content"
	"totdbot/internal/eventbus"
	"totdbot/internal/metrics"
	"totdbot/internal/observability/diag"
	"totdbot/internal/ranking"
	"totdbot/internal/rating"
	"totdbot/internal/reactions"
	rtsup "totdbot/internal/runtime/supervisor"
	"totdbot/internal/storage"
	"totdbot/internal/subscription"
	"totdbot/internal/task/engine"
	"totdbot/internal/task/scheduler"
	"totdbot/internal/totd"
	kit "totdbot/internal/transport"
	telegram "totdbot/internal/transport/telegram/adapter"
	"totdbot/internal/transport/telegram/router"
	logx "totdbot/pkg/logx"
)

// StopReason is logged when the app shuts down.
type StopReason string

const (
	StopSignal StopReason = "signal"
	StopFatal  StopReason = "fatal"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   storage.Store
	metrics *metrics.Manager

	adapter *telegram.Adapter
	router  *router.Router

	engine    *engine.Service
	sched     *scheduler.Service
	diag      *diag.Service
	broadcast *broadcast.Service
	session   *totd.Session

	updates chan kit.Update
}

// New loads and validates the config at cfgPath and builds the component graph.
// Nothing is started.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO")

	stCfg, err := mapStorage(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(stCfg, bootLog)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	adCfg, err := mapAdapter(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ad, err := telegram.New(adCfg, reactions.NewLedger(store), bootLog.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	logs, log := logx.New(mapLogging(cfg), ad)
	logs.SetOperatorTarget(cfg.Telegram.OperatorChatID, cfg.Logging.Telegram.ThreadID)
	cfgm.SetLogger(log)

	a, err := build(cfg, store, ad, logs, log)
	if err != nil {
		logs.Close()
		_ = store.Close()
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

func build(cfg *config.Config, store storage.Store, ad *telegram.Adapter, logs *logx.Service, log logx.Logger) (*App, error) {
	bus := eventbus.New()
	m := metrics.NewManager(metrics.WithRuntimeCollectors())

	engCfg, err := mapEngine(cfg)
	if err != nil {
		return nil, err
	}
	eng := engine.New(engCfg, log, bus, m)

	schedCfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, eng, log)

	t, err := cfg.TOTD.Resolve()
	if err != nil {
		return nil, err
	}
	if schedCfg.Timezone != t.Location.String() {
		log.Warn("scheduler timezone differs from the totd timezone; schedules fire on scheduler time",
			logx.String("scheduler", schedCfg.Timezone), logx.String("totd", t.Location.String()))
	}
	cCfg, err := mapContent(cfg, t)
	if err != nil {
		return nil, err
	}
	src := content.NewClient(cCfg, log, content.WithClientMetrics(m))

	bcCfg, err := mapBroadcast(cfg)
	if err != nil {
		return nil, err
	}
	subs := subscription.NewStore(store)
	bc := broadcast.New(bcCfg, ad, subs, log, broadcast.WithMetrics(m), broadcast.WithOperator(logs))

	diagCfg, err := mapDiag(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{
		log:       log,
		logs:      logs,
		bus:       bus,
		store:     store,
		metrics:   m,
		adapter:   ad,
		engine:    eng,
		sched:     sched,
		diag:      diag.New(diagCfg, m, log),
		broadcast: bc,
		updates:   make(chan kit.Update, 256),
	}

	boards := bingo.NewStore(store)
	tCfg, err := mapTOTD(cfg)
	if err != nil {
		return nil, err
	}
	// cache refreshes run under the app supervisor, which only exists after Start
	coord := cache.New(store, log, cache.WithMetrics(m), cache.WithSpawner(spawnerFunc(a.spawn)))
	a.session, err = totd.New(tCfg, totd.Deps{
		Store:     store,
		Source:    src,
		Cache:     coord,
		Broadcast: bc,
		Subs:      subs,
		Ratings:   rating.NewStore(store),
		Rankings:  ranking.NewMaintainer(store, log),
		Boards:    boards,
		Resolver:  bingo.NewResolver(boards, ad, m, log),
		Adapter:   ad,
		Operator:  logs,
		Scheduler: sched,
		Bus:       bus,
		Metrics:   m,
		Log:       log,
	})
	if err != nil {
		return nil, err
	}

	a.router = router.New(log, ad, cfg.Telegram.OwnerUserIDs,
		router.WithErrorHandler(a.session.OnError),
		router.WithReactionHandler(a.session.HandleReaction),
	)
	return a, nil
}

type spawnerFunc func(name string, fn func(ctx context.Context) error)

func (f spawnerFunc) Go(name string, fn func(ctx context.Context) error) { f(name, fn) }

func (a *App) spawn(name string, fn func(ctx context.Context) error) {
	if a.sup == nil {
		go func() { _ = fn(context.Background()) }()
		return
	}
	a.sup.Go(name, fn)
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	a.diag.Start(a.sup.Context())

	if err := a.session.RegisterSchedules(); err != nil {
		return fmt.Errorf("register schedules: %w", err)
	}
	a.router.SetRegistry(a.sup.Context(), a.session.Commands(), nil)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go("eventbus.log", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				// task events fire on every run
				if strings.HasPrefix(e.Type, "task.") {
					a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				} else {
					a.log.Info("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case newCfg, ok := <-sub:
				if !ok {
					return nil
				}
				// coalesce bursts
				for drained := false; !drained; {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						drained = true
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started",
		logx.String("timezone", a.sched.Location().String()),
		logx.Strs("regions", a.session.Regions()),
	)
	return nil
}

// applyConfig pushes the live-reloadable parts of newCfg into running components.
func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(oldCfg, newCfg); len(restart) > 0 {
		a.log.Warn("config sections changed that need a restart", logx.Strs("sections", restart))
	}

	// operator target first so Apply doesn't warn about a missing chat
	a.logs.SetOperatorTarget(newCfg.Telegram.OperatorChatID, newCfg.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogging(newCfg))
	a.router.SetOwners(newCfg.Telegram.OwnerUserIDs)

	if ec, err := mapEngine(newCfg); err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, ec)
	}
	if sc, err := mapScheduler(newCfg); err != nil {
		a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
	} else {
		a.sched.Apply(ctx, sc)
	}
	if bc, err := mapBroadcast(newCfg); err != nil {
		a.log.Warn("invalid broadcast config; keeping previous", logx.Err(err))
	} else {
		a.broadcast.Apply(bc)
	}
	if dc, err := mapDiag(newCfg); err != nil {
		a.log.Warn("invalid diag config; keeping previous", logx.Err(err))
	} else {
		a.diag.Reconfigure(ctx, dc)
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// cancel first so background loops start unwinding
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if limit > 0 {
			// never extend the caller's deadline
			if dl, ok := ctx.Deadline(); ok {
				limit = min(limit, max(time.Until(dl), 0))
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
			go func() {
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })
	step("diag", time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
