package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"totdbot/internal/reactions"
	rtsup "totdbot/internal/runtime/supervisor"
	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
	"totdbot/pkg/tgui"
)

const reactionTimeout = 5 * time.Second

// Adapter is the Telegram side of kit.Adapter. Reactions are inline buttons
// whose state lives in a reactions.Ledger, since bots cannot read native
// reaction counts back.
type Adapter struct {
	cfg    Config
	log    logx.Logger
	ledger *reactions.Ledger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	droppedUpdates atomic.Uint64

	menuMu   sync.Mutex
	menuHash uint64
	apiURL   string
	http     *http.Client
}

// New connects to the Bot API (getMe). ledger may be nil, in which case
// reaction buttons are not tracked.
func New(cfg Config, ledger *reactions.Ledger, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{
		cfg:    cfg,
		log:    log.With(logx.String("comp", "telegram.adapter")),
		ledger: ledger,
		apiURL: strings.TrimRight(cfg.APIURL, "/"),
		http:   &http.Client{Timeout: 8 * time.Second},
	}
	b, err := tele.NewBot(tele.Settings{
		URL:    a.apiURL,
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		OnError: func(err error, _ tele.Context) {
			a.log.Warn("telebot error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a.bot = b

	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

// Supervisor returns the poll supervisor (nil when stopped).
func (a *Adapter) Supervisor() *rtsup.Supervisor {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.sup
}

func isGroup(c *tele.Chat) bool {
	return c != nil && (c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup)
}

func refOf(m *tele.Message) kit.MessageRef {
	return kit.MessageRef{ChatID: m.Chat.ID, ThreadID: m.ThreadID, MessageID: m.ID}
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.emit(kit.Update{
			Kind: kit.UpdateMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      isGroup(m.Chat),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil || cb.Message == nil || cb.Message.Chat == nil || cb.Sender == nil {
			return nil
		}
		if idx, ok := tgui.ReactionIndex(cb.Data); ok {
			return a.onReactionButton(c, cb, idx)
		}
		m := cb.Message
		a.emit(kit.Update{
			Kind: kit.UpdateCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				FromID:    cb.Sender.ID,
				MessageID: m.ID,
				Data:      cb.Data,
			},
		})
		return nil
	})
}

// onReactionButton toggles the user's reaction, redraws the counts and
// forwards the change as a reaction update.
func (a *Adapter) onReactionButton(c tele.Context, cb *tele.Callback, idx int) error {
	if a.ledger == nil {
		return c.Respond()
	}
	ctx, cancel := context.WithTimeout(context.Background(), reactionTimeout)
	defer cancel()

	ref := refOf(cb.Message)
	e, err := a.ledger.Entry(ctx, ref)
	if err != nil || idx >= len(e.Symbols) {
		if err != nil && !errors.Is(err, reactions.ErrUnknownMessage) {
			a.log.Warn("reaction lookup failed", logx.Int64("chat_id", ref.ChatID), logx.Int("msg_id", ref.MessageID), logx.Err(err))
		}
		return c.Respond(&tele.CallbackResponse{Text: "This poll is closed."})
	}
	sym := e.Symbols[idx]
	added, counts, err := a.ledger.Toggle(ctx, ref, sym, cb.Sender.ID)
	if err != nil {
		a.log.Warn("reaction toggle failed", logx.Int64("chat_id", ref.ChatID), logx.Int("msg_id", ref.MessageID), logx.Err(err))
		return c.Respond()
	}

	if _, err := a.bot.EditReplyMarkup(cb.Message, tgui.ReactionKeyboard(e.Symbols, displayCounts(counts), a.cfg.ReactionsPerRow)); err != nil {
		a.log.Debug("reaction markup edit failed", logx.Int64("chat_id", ref.ChatID), logx.Err(err))
	}
	a.emit(kit.Update{
		Kind:     kit.UpdateReaction,
		Reaction: &kit.Reaction{Ref: ref, Symbol: sym, FromID: cb.Sender.ID, Added: added},
	})

	text := "Reaction removed."
	if added {
		text = "You reacted " + sym
	}
	return c.Respond(&tele.CallbackResponse{Text: text})
}

func (a *Adapter) emit(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		a.droppedUpdates.Add(1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	sup := rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))
	a.sup = sup
	a.runMu.Unlock()

	// dropped updates are reported in batches rather than per update
	sup.Go("updates.drop_report", func(c context.Context) error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := a.droppedUpdates.Swap(0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				report()
				return nil
			case <-ticker.C:
				report()
			}
		}
	})

	sup.Go("telebot.stop_on_cancel", func(c context.Context) error {
		<-c.Done()
		a.bot.Stop()
		return nil
	})

	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		if c.Err() != nil {
			a.log.Info("polling stopped")
			return nil
		}
		return errors.New("poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second), rtsup.WithPublishFirstError(true))

	return nil
}

// Stop never blocks shutdown on the long poll for more than a short grace window.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", a.droppedUpdates.Load()))
	sup.Cancel()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func sendOptions(to kit.ChatTarget, opt *kit.SendOptions, withMarkup bool) *tele.SendOptions {
	so := &tele.SendOptions{
		ParseMode:             tele.ParseMode(opt.ParseMode),
		DisableWebPagePreview: opt.DisablePreview,
		ThreadID:              to.ThreadID,
	}
	if withMarkup {
		if rm, ok := opt.ReplyMarkupAdapter.(*tele.ReplyMarkup); ok {
			so.ReplyMarkup = rm
		}
	}
	return so
}

// SendText sends text, split into several messages when it is too long.
// The returned ref is the first chunk; markup goes on the first chunk only.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range splitTelegramText(text, telegramTextLimit, opt.ParseMode) {
		if err := ctx.Err(); err != nil {
			return first, err
		}
		msg, err := a.bot.Send(chat, chunk, sendOptions(to, opt, i == 0))
		if err != nil {
			return first, classify(err)
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

// EditText replaces the text of ref; overflow chunks are sent as new messages.
func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)

	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	so := sendOptions(ref.Target(), opt, true)
	so.ThreadID = 0
	if _, err := a.bot.Edit(m, chunks[0], so); err != nil {
		return classify(err)
	}

	chat := &tele.Chat{ID: ref.ChatID}
	for _, chunk := range chunks[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, sendOptions(ref.Target(), opt, false)); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

// Send renders msg once. An image goes out as a photo with the text as its
// caption when the caption fits, otherwise as a hidden link preview.
func (a *Adapter) Send(ctx context.Context, to kit.ChatTarget, msg *kit.OutMessage) (kit.Sent, error) {
	if err := msg.Validate(); err != nil {
		return kit.Sent{}, err
	}
	if err := ctx.Err(); err != nil {
		return kit.Sent{}, err
	}

	body := renderHTML(msg)
	so := &tele.SendOptions{ParseMode: tele.ModeHTML, ThreadID: to.ThreadID, DisableWebPagePreview: true}
	if len(msg.Reactions) > 0 {
		so.ReplyMarkup = tgui.ReactionKeyboard(msg.Reactions, nil, a.cfg.ReactionsPerRow)
	}

	var what any = body
	if img := msg.Image; img != nil {
		switch {
		case fitsCaption(body):
			p := &tele.Photo{Caption: body}
			if img.FileID != "" {
				p.File = tele.File{FileID: img.FileID}
			} else {
				p.File = tele.FromURL(img.URL)
			}
			what = p
		case img.URL != "":
			what = tgui.HiddenLink(img.URL).String() + body
			so.DisableWebPagePreview = false
		}
	}

	m, err := a.bot.Send(&tele.Chat{ID: to.ChatID}, what, so)
	if err != nil {
		return kit.Sent{}, classify(err)
	}
	sent := kit.Sent{Ref: kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: m.ID}}
	if m.Photo != nil {
		sent.ImageFileID = m.Photo.FileID
	}

	if len(msg.Reactions) > 0 && a.ledger != nil {
		if err := a.ledger.Register(ctx, sent.Ref, msg.Reactions...); err != nil {
			a.log.Warn("reaction ledger register failed", logx.Int64("chat_id", to.ChatID), logx.Int("msg_id", m.ID), logx.Err(err))
		}
	}
	return sent, nil
}

// AddReaction offers symbol on a message the bot sent and redraws its keyboard.
func (a *Adapter) AddReaction(ctx context.Context, ref kit.MessageRef, symbol string) error {
	if a.ledger == nil {
		return errors.New("telegram: reactions need a ledger")
	}
	if err := a.ledger.Register(ctx, ref, symbol); err != nil {
		return err
	}
	e, err := a.ledger.Entry(ctx, ref)
	if err != nil {
		return err
	}
	counts, _ := a.ledger.Tallies(ctx, ref)
	m := &tele.Message{ID: ref.MessageID, Chat: &tele.Chat{ID: ref.ChatID}}
	if _, err := a.bot.EditReplyMarkup(m, tgui.ReactionKeyboard(e.Symbols, displayCounts(counts), a.cfg.ReactionsPerRow)); err != nil {
		return classify(err)
	}
	return nil
}

// ReactionTallies reads counts from the ledger, seeds included.
func (a *Adapter) ReactionTallies(ctx context.Context, ref kit.MessageRef) (map[string]int, error) {
	if a.ledger == nil {
		return nil, kit.ErrMessageGone
	}
	counts, err := a.ledger.Tallies(ctx, ref)
	if errors.Is(err, reactions.ErrUnknownMessage) {
		return nil, errors.Join(kit.ErrMessageGone, err)
	}
	return counts, err
}

// IsChatAdmin reports whether userID administers chatID. In a private chat
// the user is its own admin.
func (a *Adapter) IsChatAdmin(ctx context.Context, chatID int64, userID int64) (bool, error) {
	if chatID == userID {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	mem, err := a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
	if err != nil {
		return false, classify(err)
	}
	return mem.Role == tele.Administrator || mem.Role == tele.Creator, nil
}

var (
	_ kit.Adapter            = (*Adapter)(nil)
	_ kit.AdminChecker       = (*Adapter)(nil)
	_ kit.CommandMenuUpdater = (*Adapter)(nil)
)
