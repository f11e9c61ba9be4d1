package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"totdbot/internal/config"
	"totdbot/internal/reactions"
	"totdbot/internal/storage"
	telegram "totdbot/internal/transport/telegram/adapter"
	logx "totdbot/pkg/logx"
)

const baseYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  operator_chat_id: -1001
logging:
  level: info
  console: true
scheduler:
  enabled: true
storage:
  driver: memory
content:
  ubi_login: "bot@example.org:pw"
totd:
  timezone: Europe/Paris
  boundary: "19:00"
  rollover_delay: 45s
  reminders:
    - {region: Europe, at: "18:45"}
`

func parse(t *testing.T, body string) *config.Config {
	t.Helper()
	cfg, err := config.ParseBytes("config.yaml", []byte(body))
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	return cfg
}

func TestMapEngineDefaults(t *testing.T) {
	t.Parallel()
	ec, err := mapEngine(parse(t, baseYAML))
	if err != nil {
		t.Fatalf("mapEngine: %v", err)
	}
	if !ec.Enabled || ec.Workers != 2 || ec.QueueSize != 256 || ec.HistorySize != 200 || ec.RetryMax != 3 {
		t.Fatalf("engine config = %+v", ec)
	}

	cfg := parse(t, baseYAML)
	cfg.TaskEngine.DefaultTimeout = "soon"
	if _, err := mapEngine(cfg); err == nil {
		t.Fatalf("mapEngine accepted a bad duration")
	}
}

func TestMapSchedulerFallsBackToTOTDZone(t *testing.T) {
	t.Parallel()
	sc, err := mapScheduler(parse(t, baseYAML))
	if err != nil {
		t.Fatalf("mapScheduler: %v", err)
	}
	if sc.Timezone != "Europe/Paris" || !sc.Enabled {
		t.Fatalf("scheduler config = %+v", sc)
	}
}

func TestMapStorage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		driver  string
		want    string
		wantErr bool
	}{
		{"memory", "memory", false},
		{" SQLite ", "sqlite", false},
		{"none", "", true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.driver, func(t *testing.T) {
			t.Parallel()
			cfg := parse(t, baseYAML)
			cfg.Storage.Driver = tt.driver
			sc, err := mapStorage(cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("mapStorage(%q) err = %v, wantErr %v", tt.driver, err, tt.wantErr)
			}
			if err == nil && (sc.Driver != tt.want || sc.BusyTimeout != time.Second) {
				t.Fatalf("mapStorage(%q) = %+v", tt.driver, sc)
			}
		})
	}
}

func TestMapTOTD(t *testing.T) {
	t.Parallel()
	tc, err := mapTOTD(parse(t, baseYAML))
	if err != nil {
		t.Fatalf("mapTOTD: %v", err)
	}
	if tc.Boundary != "19:00" || tc.RolloverDelay != 45*time.Second || tc.BingoWeekday != time.Monday {
		t.Fatalf("totd config = %+v", tc)
	}
	if len(tc.Reminders) != 1 || tc.Reminders[0].Region != "europe" || tc.Reminders[0].At != "18:45" {
		t.Fatalf("reminders = %+v", tc.Reminders)
	}
	if tc.ItemTTL != config.DefaultItemTTL || tc.LeaderboardTTL != config.DefaultLeaderboardTTL {
		t.Fatalf("ttls = %v/%v", tc.ItemTTL, tc.LeaderboardTTL)
	}
}

func TestMapLoggingCopiesOperatorSink(t *testing.T) {
	t.Parallel()
	cfg := parse(t, baseYAML)
	cfg.Logging.Telegram.Enabled = true
	cfg.Logging.Telegram.ThreadID = 7
	lc := mapLogging(cfg)
	if !lc.Operator.Enabled || lc.Operator.ThreadID != 7 || lc.Level != "info" || !lc.Console {
		t.Fatalf("logging config = %+v", lc)
	}
}

// fakeBotAPI answers getMe so the telegram client can be built offline.
func fakeBotAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"totd","username":"totd_bot"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBuildAndApplyConfig(t *testing.T) {
	t.Parallel()
	cfg := parse(t, baseYAML)
	store := storage.NewMemory()
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, APIURL: fakeBotAPI(t).URL}, reactions.NewLedger(store), logx.Nop())
	if err != nil {
		t.Fatalf("telegram.New: %v", err)
	}
	logs, log := logx.New(logx.Config{Level: "error"}, ad)
	defer logs.Close()

	a, err := build(cfg, store, ad, logs, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if a.session == nil || a.router == nil || a.diag == nil {
		t.Fatalf("app not fully wired: %+v", a)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		a.engine.Stop(ctx)
	})

	next := parse(t, baseYAML)
	next.Broadcast.BatchSize = 30
	next.TaskEngine.Workers = 4
	a.applyConfig(context.Background(), cfg, next)
	if got := a.engine.Snapshot().Workers; got != 4 {
		t.Fatalf("engine workers after reload = %d, want 4", got)
	}

	bad := parse(t, baseYAML)
	bad.Diag.ReadTimeout = "later"
	a.applyConfig(context.Background(), next, bad)
	// the broken diag section does not block the other sections
	if got := a.engine.Snapshot().Workers; got != 2 {
		t.Fatalf("engine workers = %d, want 2", got)
	}
}
