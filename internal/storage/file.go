package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "totdbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.kv.snapshot.json (periodic snapshot)
//   - <prefix>.kv.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger
	cdc *Codec

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	data         map[string][]byte

	writes       int
	compactEvery int
}

type journalRecord struct {
	Op    string `json:"op"` // "set" | "del"
	Key   string `json:"key"`
	Value []byte `json:"val,omitempty"`
}

func openFile(cfg Config, cdc *Codec, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".kv.snapshot.json"
	journalPath := prefix + ".kv.journal.jsonl"

	data := map[string][]byte{}
	if err := loadSnapshot(snapPath, data); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv snapshot unreadable; starting from journal", logx.Err(err))
	}
	if err := replayJournal(journalPath, data); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("kv journal replay incomplete", logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	return &fileStore{
		log:          log,
		cdc:          cdc,
		snapshotPath: snapPath,
		journal:      jf,
		data:         data,
		compactEvery: 1000,
	}, nil
}

func (s *fileStore) valueCodec() *Codec { return s.cdc }

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil
	}
	cerr := s.compactLocked()
	err := s.journal.Close()
	s.journal = nil
	if cerr != nil {
		return cerr
	}
	return err
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, false, ErrClosed
	}
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte) error {
	_ = ctx
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	v := append([]byte(nil), value...)
	if err := s.appendLocked(journalRecord{Op: "set", Key: key, Value: v}); err != nil {
		return err
	}
	s.data[key] = v
	return nil
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	if _, ok := s.data[key]; !ok {
		return nil
	}
	if err := s.appendLocked(journalRecord{Op: "del", Key: key}); err != nil {
		return err
	}
	delete(s.data, key)
	return nil
}

func (s *fileStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return nil, ErrClosed
	}
	return sortedKeys(s.data, prefix), nil
}

func (s *fileStore) appendLocked(r journalRecord) error {
	if err := json.NewEncoder(s.journal).Encode(r); err != nil {
		return err
	}
	s.writes++
	if s.compactEvery > 0 && s.writes%s.compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("kv compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out map[string][]byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string][]byte
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string][]byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			// torn tail write
			continue
		}
		if r.Key == "" {
			continue
		}
		switch r.Op {
		case "set":
			out[r.Key] = r.Value
		case "del":
			delete(out, r.Key)
		}
	}
	return sc.Err()
}
