package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "totdbot/pkg/logx"
)

const validYAML = `
telegram:
  token: "123:abc"
  owner_user_ids: [42]
  operator_chat_id: -1001
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: true, thread_id: 0, min_level: warn, rate_per_sec: 1}
scheduler:
  enabled: true
storage:
  driver: sqlite
  path: ./totdbot.db
content:
  ubi_login: "bot@example.org:pw"
  oauth_id: id
  oauth_secret: secret
broadcast:
  batch_size: 30
  batch_pause: 1s
totd:
  boundary: "19:00"
  reminders:
    - {region: Europe, at: "18:45"}
`

func TestParseBytesYAML(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.yaml", []byte(validYAML))
	if err != nil {
		t.Fatalf("ParseBytes() error: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Broadcast.BatchSize != 30 || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestParseBytesStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, path, body string
	}{
		{"unknown yaml field", "c.yaml", "telegram: {token: x, bogus: 1}\n"},
		{"unknown json field", "c.json", `{"plugins": {}}`},
		{"trailing json", "c.json", `{} {}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseBytes(tt.path, []byte(tt.body)); err == nil {
				t.Fatal("ParseBytes() error = nil, want error")
			}
		})
	}
}

func TestValidateReportsProblems(t *testing.T) {
	t.Parallel()
	cfg, err := ParseBytes("config.yaml", []byte(validYAML))
	if err != nil {
		t.Fatal(err)
	}
	cfg.Telegram.Token = ""
	cfg.Broadcast.BatchSize = 50
	cfg.Storage.Driver = "redis"
	cfg.TOTD.Boundary = "25:00"

	err = Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want errors")
	}
	for _, want := range []string{"telegram.token", "broadcast.batch_size", "storage.driver", "totd.boundary"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("Validate() = %v, missing %q", err, want)
		}
	}
}

func TestTOTDResolveDefaults(t *testing.T) {
	t.Parallel()
	got, err := TOTDConfig{}.Resolve()
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	if got.Location.String() != DefaultTimezone || got.Boundary != DefaultBoundary {
		t.Fatalf("resolved = %+v", got)
	}
	if got.BingoWeekday != time.Monday || got.RolloverDelay != DefaultRolloverDelay {
		t.Fatalf("resolved = %+v", got)
	}
	if len(got.Reminders) != len(DefaultReminders) {
		t.Fatalf("reminders = %d, want %d", len(got.Reminders), len(DefaultReminders))
	}

	none, err := TOTDConfig{Reminders: []ReminderConfig{}}.Resolve()
	if err != nil {
		t.Fatal(err)
	}
	if len(none.Reminders) != 0 {
		t.Fatalf("explicit empty list kept %d reminders", len(none.Reminders))
	}
}

func TestParseClockAndWeekday(t *testing.T) {
	t.Parallel()
	clocks := map[string]bool{"19:00": true, "0:05": true, "23:59": true, "24:00": false, "7": false, "ab:cd": false}
	for in, ok := range clocks {
		_, err := ParseClock("x", in)
		if (err == nil) != ok {
			t.Fatalf("ParseClock(%q) err = %v, want ok=%v", in, err, ok)
		}
	}
	days := map[string]time.Weekday{"Monday": time.Monday, "thu": time.Thursday, "sun": time.Sunday}
	for in, want := range days {
		got, err := ParseWeekday("x", in, time.Saturday)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseWeekday("x", "t", time.Monday); err == nil {
		t.Fatal("ParseWeekday(t) accepted an ambiguous prefix")
	}
}

func TestSummarizeConfigChangeHidesSecrets(t *testing.T) {
	t.Parallel()
	oldCfg, _ := ParseBytes("config.yaml", []byte(validYAML))
	newCfg, _ := ParseBytes("config.yaml", []byte(validYAML))
	newCfg.Diag.Token = "super-secret"
	newCfg.Content.UbiLogin = "other@example.org:pw2"
	newCfg.Broadcast.BatchSize = 25

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"broadcast", "content", "diag"}
	if strings.Join(changed, ",") != strings.Join(want, ",") {
		t.Fatalf("changed = %v, want %v", changed, want)
	}

	var buf strings.Builder
	logx.NewWriter(&buf, "debug").Info("reload", attrs...)
	if strings.Contains(buf.String(), "super-secret") || strings.Contains(buf.String(), "pw2") {
		t.Fatalf("summary leaked a secret: %s", buf.String())
	}

	restart := RestartRequired(oldCfg, newCfg)
	if len(restart) != 1 || restart[0] != "content" {
		t.Fatalf("RestartRequired() = %v, want [content]", restart)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	m.SetValidator(func(ctx context.Context, cfg *Config) error { return Validate(cfg) })
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	// an invalid edit is rejected
	bad := strings.Replace(validYAML, "batch_size: 30", "batch_size: 99", 1)
	if err := os.WriteFile(path, []byte(bad), 0o600); err != nil {
		t.Fatal(err)
	}
	time.Sleep(600 * time.Millisecond)
	if m.Get().Broadcast.BatchSize != 30 {
		t.Fatalf("invalid config committed: batch_size = %d", m.Get().Broadcast.BatchSize)
	}

	good := strings.Replace(validYAML, "batch_size: 30", "batch_size: 26", 1)
	if err := os.WriteFile(path, []byte(good), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Broadcast.BatchSize != 26 {
			t.Fatalf("published batch_size = %d, want 26", cfg.Broadcast.BatchSize)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}
