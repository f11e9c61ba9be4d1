package transport

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrAccessRevoked means the destination blocked the bot, removed it or no longer exists.
	ErrAccessRevoked = errors.New("transport: destination access revoked")
	// ErrTransient is a platform-side delivery hiccup (rate limit, 5xx, timeout).
	ErrTransient = errors.New("transport: transient delivery error")
	// ErrMessageGone means a referenced message can no longer be read or edited.
	ErrMessageGone = errors.New("transport: message not reachable")
)

type ErrorClass int

const (
	ClassUnknown ErrorClass = iota
	ClassTransient
	ClassPermanent
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Classify maps a send error onto the delivery error taxonomy.
// Adapters wrap platform errors with ErrAccessRevoked or ErrTransient.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassUnknown
	}
	if errors.Is(err, ErrAccessRevoked) {
		return ClassPermanent
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return ClassTransient
	}
	return ClassUnknown
}
