// Package subscription stores the chats that receive the daily announcement.
package subscription

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"totdbot/internal/storage"
	"totdbot/internal/transport"
)

const keyPrefix = "sub/"

var ErrNotSubscribed = errors.New("subscription: chat is not subscribed")

// Subscription is one announcement destination plus its per-region reminder mentions.
type Subscription struct {
	GroupID   int64
	Target    transport.ChatTarget
	Roles     map[string]string // region -> mention text
	CreatedAt time.Time
	CreatedBy int64
}

func key(groupID int64) string { return keyPrefix + strconv.FormatInt(groupID, 10) }

type Store struct {
	st storage.Store
}

func NewStore(st storage.Store) *Store { return &Store{st: st} }

// Put creates or replaces a subscription.
func (s *Store) Put(ctx context.Context, sub Subscription) error {
	if sub.Target.ChatID == 0 {
		sub.Target.ChatID = sub.GroupID
	}
	return storage.Save(ctx, s.st, key(sub.GroupID), sub)
}

func (s *Store) Get(ctx context.Context, groupID int64) (Subscription, bool, error) {
	var sub Subscription
	ok, err := storage.Load(ctx, s.st, key(groupID), &sub)
	return sub, ok, err
}

func (s *Store) Delete(ctx context.Context, groupID int64) error {
	return s.st.Delete(ctx, key(groupID))
}

// List returns every subscription ordered by group id. Unreadable entries are skipped.
func (s *Store) List(ctx context.Context) ([]Subscription, error) {
	keys, err := s.st.Keys(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Subscription, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(k, keyPrefix), 10, 64)
		if err != nil {
			continue
		}
		sub, ok, err := s.Get(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if ok {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GroupID < out[j].GroupID })
	return out, nil
}

// SetRole binds a reminder mention for region. An empty mention removes the binding.
func (s *Store) SetRole(ctx context.Context, groupID int64, region, mention string) (Subscription, error) {
	sub, ok, err := s.Get(ctx, groupID)
	if err != nil {
		return Subscription{}, err
	}
	if !ok {
		return Subscription{}, ErrNotSubscribed
	}
	region = strings.ToLower(strings.TrimSpace(region))
	mention = strings.TrimSpace(mention)
	if sub.Roles == nil {
		sub.Roles = map[string]string{}
	}
	if mention == "" {
		delete(sub.Roles, region)
	} else {
		sub.Roles[region] = mention
	}
	if err := s.Put(ctx, sub); err != nil {
		return Subscription{}, err
	}
	return sub, nil
}
