package diag

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"totdbot/internal/metrics"
	logx "totdbot/pkg/logx"
)

func TestHandlerAuth(t *testing.T) {
	t.Parallel()
	m := metrics.NewManager()
	m.BingoWin()
	s := New(Config{}, m, logx.Nop())
	srv := httptest.NewServer(s.Handler(Config{Token: "sekret", Pprof: true}))
	defer srv.Close()

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no token", "/metrics", "", http.StatusUnauthorized},
		{"wrong token", "/metrics?token=nope", "", http.StatusUnauthorized},
		{"query token", "/metrics?token=sekret", "", http.StatusOK},
		{"bearer", "/healthz", "Bearer sekret", http.StatusOK},
		{"pprof", "/debug/pprof/cmdline", "Bearer sekret", http.StatusOK},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodGet, srv.URL+tt.path, nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, resp.StatusCode, tt.want)
		}
		if tt.path == "/metrics?token=sekret" && !strings.Contains(string(body), "totdbot_bingo_wins_total") {
			t.Fatalf("metrics body missing bingo counter:\n%s", body)
		}
	}
}

func TestPprofDisabled(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop())
	rec := httptest.NewRecorder()
	s.Handler(Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStartStop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New(Config{}, metrics.NewManager(), logx.Nop())
	s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0"})

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Addr() == "" {
		t.Fatal("server did not start")
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	sctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	s.Reconfigure(sctx, Config{Enabled: false})
	if s.Addr() != "" {
		t.Fatalf("Addr() = %q after stop", s.Addr())
	}
}

func TestIsLoopbackAddr(t *testing.T) {
	t.Parallel()
	for addr, want := range map[string]bool{
		"127.0.0.1:9464": true,
		"localhost:1":    true,
		"[::1]:80":       true,
		":9464":          false,
		"0.0.0.0:9464":   false,
		"bogus":          false,
	} {
		if got := isLoopbackAddr(addr); got != want {
			t.Fatalf("isLoopbackAddr(%q) = %v, want %v", addr, got, want)
		}
	}
}
