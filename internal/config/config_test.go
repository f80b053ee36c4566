package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestDecodeYAMLAndJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		path string
		body string
	}{
		{
			name: "yaml",
			path: "config.yaml",
			body: "server:\n  addr: \":9090\"\n  public_base_url: https://news.example.com\nscheduler:\n  timezone: Europe/Berlin\ntask_engine:\n  workers: 1\n",
		},
		{
			name: "json",
			path: "config.json",
			body: `{"server":{"addr":":9090","public_base_url":"https://news.example.com"},"scheduler":{"timezone":"Europe/Berlin"},"task_engine":{"workers":1}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.path, []byte(tt.body))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if cfg.Server.Addr != ":9090" || cfg.Scheduler.Timezone != "Europe/Berlin" {
				t.Fatalf("cfg = %+v", cfg)
			}
			if cfg.TaskEngine == nil || cfg.TaskEngine.Workers != 1 {
				t.Fatalf("task_engine = %+v", cfg.TaskEngine)
			}
		})
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"config.yaml": "server:\n  addr: \":8080\"\n  port: 8080\n",
		"config.json": `{"telegram":{"token":"x"}}`,
	}
	for path, body := range tests {
		if _, err := Decode(path, []byte(body)); err == nil {
			t.Fatalf("%s: expected unknown key error", path)
		}
	}
	if _, err := Decode("config.json", []byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestDecodeExpandsEnv(t *testing.T) {
	t.Setenv("NEWSBOT_TEST_ADDR", ":7070")
	cfg, err := Decode("config.yaml", []byte("server:\n  addr: \"${NEWSBOT_TEST_ADDR}\"\n  public_base_url: \"${NEWSBOT_TEST_UNSET:-http://localhost:7070}\"\npprof:\n  token: \"pa$$word\"\n"))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Fatalf("addr = %q", cfg.Server.Addr)
	}
	if cfg.Server.PublicBaseURL != "http://localhost:7070" {
		t.Fatalf("public_base_url = %q", cfg.Server.PublicBaseURL)
	}
	if cfg.Pprof.Token != "pa$$word" {
		t.Fatalf("token = %q", cfg.Pprof.Token)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "empty is valid", cfg: Config{}},
		{name: "bad timezone", cfg: Config{Scheduler: SchedulerConfig{Timezone: "Mars/Olympus"}}, wantErr: "scheduler"},
		{name: "bad duration", cfg: Config{TaskEngine: &TaskEngineConfig{DefaultTimeout: "soon"}}, wantErr: "task_engine"},
		{name: "negative workers", cfg: Config{TaskEngine: &TaskEngineConfig{Workers: -1}}, wantErr: "task_engine"},
		{name: "unknown driver", cfg: Config{Storage: &StorageConfig{Driver: "postgres"}}, wantErr: "storage"},
		{name: "bad tls mode", cfg: Config{Email: &EmailConfig{TLS: "maybe"}}, wantErr: "email"},
		{name: "bad base url", cfg: Config{Server: ServerConfig{PublicBaseURL: "not a url"}}, wantErr: "server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := tt.cfg
			err := Validate(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Logging: LoggingConfig{Level: "info"}, Pprof: PprofConfig{Token: "a"}}
	newCfg := &Config{Logging: LoggingConfig{Level: "debug"}, Pprof: PprofConfig{Token: "b"}, Storage: &StorageConfig{Driver: "memory"}}

	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	want := []string{"logging", "pprof", "storage"}
	if strings.Join(sections, ",") != strings.Join(want, ",") {
		t.Fatalf("sections = %v, want %v", sections, want)
	}
	if len(attrs) == 0 {
		t.Fatal("expected log attrs")
	}
	if !RequiresRestart("storage") || RequiresRestart("logging") {
		t.Fatal("restart classification wrong")
	}
}

func TestWatchPublishesChanges(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "logging:\n  level: info\n")

	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Watch(ctx) }()

	// Give the watcher time to register before writing.
	time.Sleep(200 * time.Millisecond)
	writeFile(t, dir, "config.yaml", "logging:\n  level: debug\n")

	select {
	case cfg := <-sub:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("level = %q", cfg.Logging.Level)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("published config not committed")
	}
}

func TestWatchIgnoresInvalidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "config.json", `{"scheduler":{"timezone":"UTC"}}`)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	writeFile(t, dir, "config.json", `{"scheduler":{"timezone":"Nowhere/Land"}}`)
	m.reload(context.Background())
	if got := m.Get().Scheduler.Timezone; got != "UTC" {
		t.Fatalf("timezone = %q, want previous config kept", got)
	}
}
