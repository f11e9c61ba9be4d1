package adapter

import (
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"totdbot/internal/task/engine"
	kit "totdbot/internal/transport"
)

var retryAfterRe = regexp.MustCompile(`(?i)retry after (\d+)`)

// revoked are telebot errors meaning the chat is gone for good.
var revoked = []error{
	tele.ErrBlockedByUser,
	tele.ErrKickedFromGroup,
	tele.ErrKickedFromSuperGroup,
	tele.ErrChatNotFound,
	tele.ErrUserIsDeactivated,
}

var revokedText = []string{
	"bot was blocked",
	"bot was kicked",
	"chat not found",
	"user is deactivated",
	"not a member",
	"have no rights to send",
	"can't initiate conversation",
	"(403)",
}

var goneText = []string{
	"message to edit not found",
	"message can't be edited",
	"message to delete not found",
}

// classify wraps a telebot error with the transport taxonomy. Flood waits
// carry a retry hint for the task engine.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, e := range revoked {
		if errors.Is(err, e) {
			return fmt.Errorf("%w: %w", kit.ErrAccessRevoked, err)
		}
	}
	msg := strings.ToLower(err.Error())
	for _, s := range revokedText {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", kit.ErrAccessRevoked, err)
		}
	}
	for _, s := range goneText {
		if strings.Contains(msg, s) {
			return fmt.Errorf("%w: %w", kit.ErrMessageGone, err)
		}
	}
	if m := retryAfterRe.FindStringSubmatch(msg); m != nil {
		secs, _ := strconv.Atoi(m[1])
		return engine.RetryAfter(fmt.Errorf("%w: %w", kit.ErrTransient, err), time.Duration(secs)*time.Second)
	}
	if strings.Contains(msg, "too many requests") || serverError(msg) {
		return fmt.Errorf("%w: %w", kit.ErrTransient, err)
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return fmt.Errorf("%w: %w", kit.ErrTransient, err)
	}
	return err
}

// serverError matches the "(5xx)" suffix telebot puts on API errors.
func serverError(msg string) bool {
	i := strings.LastIndex(msg, "(5")
	return i >= 0 && len(msg) >= i+5 && msg[i+4] == ')'
}
