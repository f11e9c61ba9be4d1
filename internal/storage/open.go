package storage

import (
	"errors"
	"strings"

	logx "totdbot/pkg/logx"
)

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	cdc := NewCodec(cfg.CompressThreshold)

	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "memory":
		log.Warn("storage driver is memory; state will not survive a restart")
		return &memoryStore{data: map[string][]byte{}, cdc: cdc}, nil
	case "file":
		return openFile(cfg, cdc, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, cdc, log)
	case "none":
		return nil, ErrDisabled
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
