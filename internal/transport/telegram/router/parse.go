package router

import (
	"math/rand/v2"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

var ridSeq atomic.Uint64

// newReqID is short and unique enough to correlate log lines of one request.
func newReqID() string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := []byte{alpha[rand.N(len(alpha))], alpha[rand.N(len(alpha))]}
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "-" + strconv.FormatUint(ridSeq.Add(1), 36) + string(suffix)
}

// tokenizeCommandLine splits command text on whitespace, honouring quotes and
// backslash escapes: /reminders europe "@here please"
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar byte
		esc   bool
	)
	flush := func() {
		if buf.Len() > 0 {
			out = append(out, buf.String())
			buf.Reset()
		}
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case esc:
			buf.WriteByte(ch)
			esc = false
		case ch == '\\':
			esc = true
		case inQ && ch == qChar:
			inQ = false
		case inQ:
			buf.WriteByte(ch)
		case ch == '"' || ch == '\'':
			inQ = true
			qChar = ch
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			flush()
		default:
			buf.WriteByte(ch)
		}
	}
	flush()
	return out
}

// parseFlags splits args into positionals, --k=v / -k=v values and bool flags.
// Only the "=" form carries a value, so "-f 5" is a bool flag plus a positional.
func parseFlags(args []string) (pos []string, flags map[string]string, bools map[string]bool) {
	flags = map[string]string{}
	bools = map[string]bool{}
	for _, a := range args {
		if len(a) < 2 || a[0] != '-' || isNumber(a) {
			pos = append(pos, a)
			continue
		}
		key := strings.TrimLeft(a, "-")
		if key == "" {
			pos = append(pos, a)
			continue
		}
		if eq := strings.IndexByte(key, '='); eq >= 0 {
			flags[key[:eq]] = key[eq+1:]
			continue
		}
		if strings.HasPrefix(a, "--") || len(key) == 1 {
			bools[key] = true
			continue
		}
		// -abc
		for j := 0; j < len(key); j++ {
			bools[string(key[j])] = true
		}
	}
	return pos, flags, bools
}

func isNumber(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}
