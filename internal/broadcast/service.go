// Package broadcast fans one pre-rendered announcement out to every subscription.
package broadcast

import (
	"context"
	"time"

	logx "totdbot/pkg/logx"
)

func New(cfg Config, sender Sender, subs Remover, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:       cfg.normalized(),
		sender:    sender,
		subs:      subs,
		log:       log.With(logx.String("comp", "broadcast")),
		sleep:     sleepCtx,
		status:    map[string]*Report{},
		statusMax: 50,
		statusTTL: 7 * 24 * time.Hour,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	return s
}

// Apply swaps batch settings; a running distribution keeps the settings it started with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.cfg = cfg.normalized()
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Status returns a copy of a finished or running report.
func (s *Service) Status(id string) (Report, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	r, ok := s.status[id]
	if !ok || r == nil {
		return Report{}, false
	}
	return copyReport(r), true
}

// Last returns the most recent report.
func (s *Service) Last() (Report, bool) {
	s.statusMu.RLock()
	id := s.lastID
	s.statusMu.RUnlock()
	if id == "" {
		return Report{}, false
	}
	return s.Status(id)
}

func (s *Service) remember(r *Report) {
	now := time.Now()
	s.statusMu.Lock()
	s.status[r.ID] = r
	s.lastID = r.ID
	s.statusMu.Unlock()
	s.pruneStatus(now)
}

func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, r := range s.status {
		if id != s.lastID && !r.DoneAt.IsZero() && now.Sub(r.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) > s.statusMax {
		var oldest string
		for id, r := range s.status {
			if id == s.lastID {
				continue
			}
			if oldest == "" || r.StartedAt.Before(s.status[oldest].StartedAt) {
				oldest = id
			}
		}
		if oldest == "" {
			return
		}
		delete(s.status, oldest)
	}
}

func copyReport(r *Report) Report {
	cp := *r
	cp.Refs = append([]Delivery(nil), r.Refs...)
	cp.Failures = append([]int64(nil), r.Failures...)
	return cp
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
