package router

import (
	"context"
	"time"

	kit "totdbot/internal/transport"
	logx "totdbot/pkg/logx"
	"totdbot/pkg/tgui"
)

type Access int

const (
	AccessEveryone Access = iota
	// AccessChatAdmin allows chat administrators and owners.
	AccessChatAdmin
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Route is a space-separated command path, e.g. "bingo vote".
	Route       string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type CallbackHandlerFunc func(ctx context.Context, req *Request, payload string) error

// CallbackRoute handles inline-button data "<ns>:<action>[:payload]".
type CallbackRoute struct {
	NS      string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  CallbackHandlerFunc
}

// ReactionHandler receives reaction updates, already applied to the adapter's ledger.
type ReactionHandler func(ctx context.Context, r kit.Reaction) error

// ErrorHandler is called when a handler returns an error or panics.
type ErrorHandler func(ctx context.Context, req *Request, err error)

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Path    []string
	Command string
	Args    []string
	Payload string

	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Adapter kit.Adapter
	Logger  logx.Logger
	Owner   bool
}

// Reply sends msg to the chat the request came from.
func (r *Request) Reply(ctx context.Context, msg tgui.Message) error {
	_, err := msg.Send(ctx, r.Adapter, r.Chat)
	return err
}

// ReplyText sends plain text.
func (r *Request) ReplyText(ctx context.Context, text string) error {
	_, err := r.Adapter.SendText(ctx, r.Chat, text, nil)
	return err
}
