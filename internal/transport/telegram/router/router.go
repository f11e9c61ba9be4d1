package router

import (
	"context"
	"errors"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "totdbot/internal/runtime/supervisor"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
)

const (
	defaultWorkers  = 4
	defaultQueueCap = 256
)

// Router parses incoming updates, checks access and runs handlers on a small
// worker pool.
type Router struct {
	mu    sync.RWMutex
	root  *cmdNode
	alias map[string]*cmdNode

	cbMu      sync.RWMutex
	callbacks map[string]map[string]CallbackRoute

	ownMu  sync.RWMutex
	owners []int64

	log      logx.Logger
	adapter  kit.Adapter
	onError  ErrorHandler
	reaction ReactionHandler
	workers  int

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

type Option func(*Router)

func WithErrorHandler(h ErrorHandler) Option { return func(r *Router) { r.onError = h } }

func WithReactionHandler(h ReactionHandler) Option { return func(r *Router) { r.reaction = h } }

func WithWorkers(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.workers = n
		}
	}
}

func New(log logx.Logger, adapter kit.Adapter, owners []int64, opts ...Option) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		root:      newRoot(),
		alias:     map[string]*cmdNode{},
		callbacks: map[string]map[string]CallbackRoute{},
		owners:    slices.Clone(owners),
		log:       log.With(logx.String("comp", "telegram.router")),
		adapter:   adapter,
		workers:   defaultWorkers,
		jobs:      make(chan func(), defaultQueueCap),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Supervisor returns the worker supervisor while the dispatch loop runs.
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// SetOwners replaces the owner list; safe during hot reload.
func (r *Router) SetOwners(owners []int64) {
	r.ownMu.Lock()
	r.owners = slices.Clone(owners)
	r.ownMu.Unlock()
}

func (r *Router) isOwner(id int64) bool {
	r.ownMu.RLock()
	defer r.ownMu.RUnlock()
	return slices.Contains(r.owners, id)
}

// SetRegistry installs commands and callback routes. A help command is always
// added, and the platform menu is refreshed when the adapter supports it.
func (r *Router) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "list commands",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Adapter.SendText(ctx, req.Chat, r.helpText(req.Args), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
			return err
		},
	})

	root := newRoot()
	alias := map[string]*cmdNode{}
	var menu []Command
	for _, c := range cmds {
		route := splitRoute(c.Route)
		if len(route) == 0 || c.Handle == nil {
			continue
		}
		root.add(route, c)
		menu = append(menu, c)
		leaf := root.find(route)

		// Telegram menu names are [a-z0-9_]{1,32}; multi-token routes get "/a_b" aliases.
		// The bare single-token name must not become an alias, or "/bingo vote"
		// would stop at the "bingo" alias.
		if name, ok := routeMenuName(route); ok && (len(route) > 1 || name != route[0]) {
			if _, exists := alias[name]; !exists {
				alias[name] = leaf
			}
		}
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = leaf
			if sa := menuName(a); sa != "" {
				if _, exists := alias[sa]; !exists {
					alias[sa] = leaf
				}
			}
		}
	}

	cb := map[string]map[string]CallbackRoute{}
	for _, rt := range cbs {
		ns, action := strings.TrimSpace(rt.NS), strings.TrimSpace(rt.Action)
		if ns == "" || action == "" || rt.Handle == nil {
			continue
		}
		if cb[ns] == nil {
			cb[ns] = map[string]CallbackRoute{}
		}
		cb[ns][action] = rt
	}

	r.mu.Lock()
	r.root = root
	r.alias = alias
	r.mu.Unlock()

	r.cbMu.Lock()
	r.callbacks = cb
	r.cbMu.Unlock()

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		items := menuCommands(menu)
		go func() {
			mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, items); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(r.log), rtsup.WithCancelOnError(false))
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", r.workers), logx.Int("queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					r.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second), rtsup.WithPublishFirstError(true))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) runJob(worker int, job func()) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", p), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (r *Router) tryEnqueue(fn func()) bool {
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		r.routeMessage(ctx, up)
	case kit.UpdateCallback:
		r.routeCallback(ctx, up)
	case kit.UpdateReaction:
		r.routeReaction(ctx, up)
	}
}

func (r *Router) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	r.mu.RLock()
	root, alias := r.root, r.alias
	r.mu.RUnlock()

	if leaf, ok := alias[word]; ok && leaf != nil && leaf.cmd != nil {
		r.enqueueCommand(ctx, up, *leaf.cmd, splitRoute(leaf.cmd.Route), args)
		return
	}

	cur, ok := root.child(word)
	if !ok {
		// other bots share groups; unknown commands stay silent there
		if !msg.IsGroup {
			_, _ = r.adapter.SendText(ctx, chat, "Unknown command. Try /help", nil)
		}
		return
	}
	path := []string{word}
	for len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		child, ok := cur.child(args[0])
		if !ok {
			break
		}
		cur = child
		path = append(path, args[0])
		args = args[1:]
	}

	if cur.cmd == nil {
		_, _ = r.adapter.SendText(ctx, chat, r.helpText(path), &kit.SendOptions{DisablePreview: true, ParseMode: "HTML"})
		return
	}
	r.enqueueCommand(ctx, up, *cur.cmd, path, args)
}

func (r *Router) allowed(ctx context.Context, access Access, chatID, userID int64) bool {
	if r.isOwner(userID) {
		return true
	}
	switch access {
	case AccessEveryone:
		return true
	case AccessChatAdmin:
		ac, ok := r.adapter.(kit.AdminChecker)
		if !ok {
			return false
		}
		admin, err := ac.IsChatAdmin(ctx, chatID, userID)
		if err != nil {
			r.log.Warn("admin check failed", logx.Int64("chat_id", chatID), logx.Int64("user_id", userID), logx.Err(err))
			return false
		}
		return admin
	default:
		return false
	}
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64, command string) *Request {
	rid := newReqID()
	return &Request{
		Update:  up,
		Chat:    chat,
		FromID:  from,
		Command: command,
		ReqID:   rid,
		Adapter: r.adapter,
		Owner:   r.isOwner(from),
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
			logx.String("cmd", command),
		),
	}
}

func (r *Router) enqueueCommand(ctx context.Context, up kit.Update, cmd Command, path, raw []string) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !r.allowed(ctx, cmd.Access, msg.ChatID, msg.FromID) {
		_, _ = r.adapter.SendText(ctx, chat, "You are not allowed to use this command here.", nil)
		return
	}

	req := r.newRequest(up, chat, msg.FromID, cmd.Route)
	req.Path = path
	req.RawArgs = raw
	req.Args, req.Flags, req.BoolFlags = parseFlags(raw)

	final := Chain(cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)
	if !r.tryEnqueue(func() { r.finish(ctx, req, final(ctx, req)) }) {
		_, _ = r.adapter.SendText(ctx, chat, "Busy, try again in a moment.", nil)
	}
}

func (r *Router) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	ns, action, payload := parts[0], parts[1], ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	r.cbMu.RLock()
	rt, ok := r.callbacks[ns][action]
	r.cbMu.RUnlock()
	if !ok {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	if !r.allowed(ctx, rt.Access, cb.ChatID, cb.FromID) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Not allowed")
		return
	}

	req := r.newRequest(up, kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}, cb.FromID, "cb:"+ns+":"+action)
	req.Payload = payload
	h := func(ctx context.Context, req *Request) error { return rt.Handle(ctx, req, payload) }
	final := Chain(h, MWPanicRecover(r.log), MWRequestLog(r.log), MWTimeout(rt.Timeout))

	if !r.tryEnqueue(func() {
		r.finish(ctx, req, final(ctx, req))
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}) {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Busy")
	}
}

func (r *Router) routeReaction(ctx context.Context, up kit.Update) {
	if up.Reaction == nil || r.reaction == nil {
		return
	}
	rc := *up.Reaction
	if !r.tryEnqueue(func() {
		if err := r.reaction(ctx, rc); err != nil {
			r.log.Warn("reaction handler failed",
				logx.Int64("chat_id", rc.Ref.ChatID),
				logx.Int("msg_id", rc.Ref.MessageID),
				logx.String("symbol", rc.Symbol),
				logx.Err(err),
			)
		}
	}) {
		r.log.Warn("reaction dropped: queue full", logx.Int64("chat_id", rc.Ref.ChatID))
	}
}

func (r *Router) finish(ctx context.Context, req *Request, err error) {
	if err == nil || errors.Is(err, context.Canceled) || r.onError == nil {
		return
	}
	r.onError(ctx, req, err)
}
