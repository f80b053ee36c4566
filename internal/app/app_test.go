package app

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"newsbot/internal/config"
	logx "newsbot/pkg/logx"
)

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		cfg        *config.StorageConfig
		wantDriver string
		wantErr    bool
	}{
		{name: "omitted defaults to sqlite", cfg: nil, wantDriver: "sqlite"},
		{name: "memory", cfg: &config.StorageConfig{Driver: "memory"}, wantDriver: "memory"},
		{name: "sqlite without path", cfg: &config.StorageConfig{Driver: "sqlite"}, wantErr: true},
		{name: "bad busy timeout", cfg: &config.StorageConfig{Driver: "sqlite", Path: "x.db", BusyTimeout: "later"}, wantErr: true},
		{name: "unknown", cfg: &config.StorageConfig{Driver: "redis"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := mapStorageConfig(&config.Config{Storage: tt.cfg})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.Driver != tt.wantDriver {
				t.Fatalf("driver = %q, want %q", got.Driver, tt.wantDriver)
			}
		})
	}
}

func TestMapTaskEngineConfigSerialByDefault(t *testing.T) {
	t.Parallel()
	got, err := mapTaskEngineConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapTaskEngineConfig: %v", err)
	}
	if got.Workers != 1 {
		t.Fatalf("workers = %d, want 1", got.Workers)
	}
	got, err = mapTaskEngineConfig(&config.Config{TaskEngine: &config.TaskEngineConfig{Workers: 3, DefaultTimeout: "2m"}})
	if err != nil {
		t.Fatalf("mapTaskEngineConfig: %v", err)
	}
	if got.Workers != 3 || got.DefaultTimeout != 2*time.Minute {
		t.Fatalf("got %+v", got)
	}
}

func TestMapMailerConfig(t *testing.T) {
	t.Parallel()
	if _, ok, err := mapMailerConfig(&config.Config{}); ok || err != nil {
		t.Fatalf("no email section: ok=%v err=%v", ok, err)
	}
	mc, ok, err := mapMailerConfig(&config.Config{Email: &config.EmailConfig{Host: " smtp.example.com ", From: "bot@example.com"}})
	if err != nil || !ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
	if mc.Host != "smtp.example.com" || mc.Timeout != 15*time.Second {
		t.Fatalf("mailer config = %+v", mc)
	}
}

func TestPublicBaseURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		server config.ServerConfig
		want   string
	}{
		{server: config.ServerConfig{}, want: "http://localhost:8080"},
		{server: config.ServerConfig{Addr: ":9000"}, want: "http://localhost:9000"},
		{server: config.ServerConfig{PublicBaseURL: "https://news.example.com/"}, want: "https://news.example.com"},
	}
	for _, tt := range tests {
		if got := publicBaseURL(&config.Config{Server: tt.server}); got != tt.want {
			t.Fatalf("publicBaseURL(%+v) = %q, want %q", tt.server, got, tt.want)
		}
	}
}

func TestMapAllRejectsBadDurations(t *testing.T) {
	t.Parallel()
	bad := []*config.Config{
		{Server: config.ServerConfig{ReadTimeout: "fast"}},
		{Feed: &config.FeedConfig{Timeout: "-1s"}},
		{Publisher: &config.PublisherConfig{Timeout: "x"}},
		{Email: &config.EmailConfig{Host: "smtp", Timeout: "y"}},
	}
	for i, cfg := range bad {
		if _, err := mapAll(cfg); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestStartServeStop(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server:  config.ServerConfig{Addr: "127.0.0.1:0"},
		Logging: config.LoggingConfig{Level: "error"},
		Storage: &config.StorageConfig{Driver: "memory"},
	}
	logSvc, log := logx.New(mapLogConfig(cfg))
	a, err := build(cfg, logSvc, log)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var addr string
	deadline := time.Now().Add(3 * time.Second)
	for addr == "" && time.Now().Before(deadline) {
		addr = a.server.Addr()
		time.Sleep(10 * time.Millisecond)
	}
	if addr == "" {
		t.Fatal("api never started listening")
	}

	for _, path := range []string{"/healthz", "/metrics", "/api/schedules"} {
		resp, err := http.Get("http://" + addr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
	}

	snap := a.sched.Snapshot()
	found := false
	for _, e := range snap.Entries {
		if strings.Contains(e.Name, "daily-check") {
			found = true
		}
	}
	if !found {
		t.Fatalf("daily check not registered: %+v", snap.Entries)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
