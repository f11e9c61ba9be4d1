package tgui

import (
	"errors"
	"strings"
)

// MaxCallbackDataLen is Telegram's callback_data limit in bytes.
const MaxCallbackDataLen = 64

var ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")

// Data formats callback data as "ns:action[:payload]".
func Data(ns, action, payload string) (string, error) {
	s := strings.TrimSpace(ns) + ":" + strings.TrimSpace(action)
	if payload != "" {
		s += ":" + payload
	}
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseData splits data produced by Data. Payload may itself contain ':'.
func ParseData(data string) (ns, action, payload string, ok bool) {
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
