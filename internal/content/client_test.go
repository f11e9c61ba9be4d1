package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "totdbot/pkg/logx"
)

type upstream struct {
	mu         sync.Mutex
	liveToken  string
	reject401  atomic.Int32
	logins     atomic.Int32
	tmxDelay   time.Duration
	thresholds map[string]bool
}

func (u *upstream) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	write := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/v3/profiles/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Ubi-AppId") == "" || !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.logins.Add(1)
		write(w, map[string]string{"ticket": "tkt"})
	})
	mux.HandleFunc("/v2/authentication/token/ubiservices", func(w http.ResponseWriter, r *http.Request) {
		var body struct{ Audience string }
		_ = json.NewDecoder(r.Body).Decode(&body)
		tok := "core-" + body.Audience
		if body.Audience == "NadeoLiveServices" {
			u.mu.Lock()
			u.liveToken = "live-" + time.Now().Format(time.RFC3339Nano)
			tok = u.liveToken
			u.mu.Unlock()
		}
		write(w, map[string]string{"accessToken": tok})
	})
	mux.HandleFunc("/api/access_token", func(w http.ResponseWriter, r *http.Request) {
		write(w, map[string]string{"access_token": "oauth"})
	})
	mux.HandleFunc("/api/token/campaign/month", func(w http.ResponseWriter, r *http.Request) {
		if u.reject401.Load() > 0 {
			u.reject401.Add(-1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		u.mu.Lock()
		ok := r.Header.Get("Authorization") == "nadeo_v1 t="+u.liveToken
		u.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		write(w, map[string]any{"monthList": []any{map[string]any{"days": []any{
			map[string]any{"mapUid": "old", "seasonUid": "s", "relativeStart": -90000, "relativeEnd": -3600},
			map[string]any{"mapUid": "cur", "seasonUid": "s", "relativeStart": -3600, "relativeEnd": 82800},
			map[string]any{"mapUid": "next", "seasonUid": "s", "relativeStart": 82800, "relativeEnd": 169200},
		}}}})
	})
	mux.HandleFunc("/maps/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("mapUidList"); got != "cur" {
			t.Errorf("mapUidList = %q", got)
		}
		write(w, []any{map[string]any{
			"mapUid": "cur", "name": "$o$fffWinter$z Ride", "author": "acc-1",
			"bronzeScore": 60000, "silverScore": 50000, "goldScore": 45000, "authorScore": 42123,
			"timestamp": "2024-04-20T10:00:00+00:00", "thumbnailUrl": "https://img/cur.jpg",
		}})
	})
	mux.HandleFunc("/api/display-names/", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]string{}
		for _, id := range r.URL.Query()["accountId[]"] {
			out[id] = "name-" + id
		}
		write(w, out)
	})
	mux.HandleFunc("/api/maps/", func(w http.ResponseWriter, r *http.Request) {
		if u.tmxDelay > 0 {
			select {
			case <-time.After(u.tmxDelay):
			case <-r.Context().Done():
				return
			}
		}
		write(w, map[string]any{"Results": []any{map[string]any{
			"Name": "Winter Ride", "MapId": 77, "HasImages": true, "UpdatedAt": "2024-04-20T10:00:00",
			"Tags": []any{map[string]string{"Name": "Tech"}, map[string]string{"Name": "Ice"}},
		}}})
	})
	mux.HandleFunc("/api/token/leaderboard/group/s/map/cur/top", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("length") == "10" {
			var top []any
			for i := 0; i < 10; i++ {
				top = append(top, map[string]any{"accountId": "p" + string(rune('a'+i)), "score": 42000 + i})
			}
			write(w, map[string]any{"tops": []any{map[string]any{"top": top}}})
			return
		}
		if !u.thresholds[q.Get("offset")] {
			write(w, map[string]any{"tops": []any{map[string]any{"top": []any{}}}})
			return
		}
		write(w, map[string]any{"tops": []any{map[string]any{"top": []any{
			map[string]any{"accountId": "t" + q.Get("offset"), "score": 50000},
		}}}})
	})
	return mux
}

func newTestClient(t *testing.T, u *upstream, mutate func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(u.handler(t))
	t.Cleanup(srv.Close)
	cfg := Config{
		UbiLogin:          "bot@example.org:secret",
		OAuthID:           "id",
		OAuthSecret:       "secret",
		RequestsPerSecond: 1000,
		Endpoints:         Endpoints{Ubi: srv.URL, Core: srv.URL, Live: srv.URL, OAuth: srv.URL, TMX: srv.URL},
		Location:          time.UTC,
		BoundaryHour:      17,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	now := func() time.Time { return time.Date(2024, 5, 1, 16, 0, 0, 0, time.UTC) }
	return NewClient(cfg, logx.Nop(), WithClientClock(now))
}

func TestCurrentItem(t *testing.T) {
	t.Parallel()
	u := &upstream{}
	c := newTestClient(t, u, nil)

	it, err := c.CurrentItem(context.Background())
	if err != nil {
		t.Fatalf("CurrentItem() error: %v", err)
	}
	if it.ID != "cur" || it.SeasonID != "s" {
		t.Fatalf("item = %+v, want cur/s", it)
	}
	if it.AuthorName != "name-acc-1" || it.DisplayAuthor() != "name-acc-1" {
		t.Fatalf("author = %q", it.AuthorName)
	}
	if it.TMXID != 77 || it.DisplayName() != "Winter Ride" || len(it.Tags) != 2 {
		t.Fatalf("tmx data = %+v", it)
	}
	if !strings.HasSuffix(it.ThumbnailURL, "/mapimage/77/1") {
		t.Fatalf("thumbnail = %q", it.ThumbnailURL)
	}
	// 16:00 is before the 17:00 boundary
	if it.Day != "2024-04-30" {
		t.Fatalf("Day = %q, want 2024-04-30", it.Day)
	}
	if u.logins.Load() != 1 {
		t.Fatalf("logins = %d, want 1", u.logins.Load())
	}
}

func TestCurrentItemReloginOnce(t *testing.T) {
	t.Parallel()
	u := &upstream{}
	c := newTestClient(t, u, nil)
	ctx := context.Background()

	if _, err := c.CurrentItem(ctx); err != nil {
		t.Fatal(err)
	}
	u.reject401.Store(1)
	if _, err := c.CurrentItem(ctx); err != nil {
		t.Fatalf("CurrentItem() after 401 error: %v", err)
	}
	if u.logins.Load() != 2 {
		t.Fatalf("logins = %d, want 2", u.logins.Load())
	}

	// a second 401 right after re-login is returned
	u.reject401.Store(2)
	_, err := c.CurrentItem(ctx)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401 StatusError", err)
	}
}

func TestCurrentItemExchangeTimeout(t *testing.T) {
	t.Parallel()
	u := &upstream{tmxDelay: time.Second}
	c := newTestClient(t, u, func(cfg *Config) { cfg.TMXTimeout = 20 * time.Millisecond })

	it, err := c.CurrentItem(context.Background())
	if err != nil {
		t.Fatalf("CurrentItem() error: %v", err)
	}
	if it.TMXID != 0 || it.DisplayName() != "Winter Ride" || it.ThumbnailURL != "https://img/cur.jpg" {
		t.Fatalf("item = %+v, want upstream data only", it)
	}
}

func TestLeaderboard(t *testing.T) {
	t.Parallel()
	u := &upstream{thresholds: map[string]bool{"99": true, "999": true}}
	c := newTestClient(t, u, nil)

	lb, err := c.Leaderboard(context.Background(), Item{ID: "cur", SeasonID: "s"})
	if err != nil {
		t.Fatalf("Leaderboard() error: %v", err)
	}
	if len(lb.Records) != 12 {
		t.Fatalf("records = %d, want 12", len(lb.Records))
	}
	if lb.Records[0].Position != 1 || lb.Records[9].Position != 10 {
		t.Fatalf("top positions = %d..%d", lb.Records[0].Position, lb.Records[9].Position)
	}
	if lb.Records[10].Position != 100 || lb.Records[11].Position != 1000 {
		t.Fatalf("thresholds = %+v", lb.Records[10:])
	}
	if lb.Records[0].PlayerName != "name-pa" {
		t.Fatalf("player name = %q", lb.Records[0].PlayerName)
	}
}
