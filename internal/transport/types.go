package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
	UpdateReaction UpdateKind = "reaction"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
	Reaction *Reaction
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

// Reaction is a single user toggling a reaction symbol on a message.
type Reaction struct {
	Ref    MessageRef
	Symbol string
	FromID int64
	Added  bool // false when the user took the reaction back
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

func (r MessageRef) Target() ChatTarget { return ChatTarget{ChatID: r.ChatID, ThreadID: r.ThreadID} }

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// SeedReactionCount is the number of reactions the bot itself adds per offered symbol.
// ReactionTallies include them; vote counting subtracts them.
const SeedReactionCount = 1

// Sent is what the platform hands back for a rich send.
type Sent struct {
	Ref MessageRef
	// ImageFileID is the platform handle of the uploaded image, reusable by later sends.
	ImageFileID string
}

// TextSender is the narrow send surface used by logging and notifications.
type TextSender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	TextSender
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error

	// Send renders an OutMessage once for the platform and sends it to one destination.
	Send(ctx context.Context, to ChatTarget, msg *OutMessage) (Sent, error)
	// AddReaction attaches a reaction symbol to a message the bot sent.
	AddReaction(ctx context.Context, ref MessageRef, symbol string) error
	// ReactionTallies returns per-symbol counts for a message, including seed reactions.
	ReactionTallies(ctx context.Context, ref MessageRef) (map[string]int, error)
}

// OperatorChannel receives unexpected-error reports. It is never used for control flow.
type OperatorChannel interface {
	Notify(ctx context.Context, text string) error
}

// AdminChecker is an optional adapter capability used to gate chat-level commands.
type AdminChecker interface {
	IsChatAdmin(ctx context.Context, chatID int64, userID int64) (bool, error)
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
