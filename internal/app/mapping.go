package app

import (
	"fmt"
	"strings"
	"time"

	"newsbot/internal/api"
	"newsbot/internal/config"
	"newsbot/internal/feed"
	"newsbot/internal/generate"
	"newsbot/internal/mailer"
	"newsbot/internal/publish"
	"newsbot/internal/storage"
	"newsbot/internal/task/engine"
	"newsbot/internal/task/scheduler"
	logx "newsbot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig defaults to sqlite at ./newsbot.db when the section is
// omitted.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := config.StorageConfig{Driver: "sqlite", Path: "./newsbot.db"}
	if cfg.Storage != nil {
		sc = *cfg.Storage
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "", "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

// mapTaskEngineConfig keeps a single worker unless configured otherwise:
// schedule runs then never execute concurrently.
func mapTaskEngineConfig(cfg *config.Config) (engine.Config, error) {
	te := config.TaskEngineConfig{}
	if cfg.TaskEngine != nil {
		te = *cfg.TaskEngine
	}
	defTimeout, err := config.ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
	if err != nil {
		return engine.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
	if err != nil {
		return engine.Config{}, err
	}
	out := engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: defTimeout,
		MaxQueueDelay:  maxDelay,
		HistorySize:    te.HistorySize,
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	return out, nil
}

func mapSchedulerConfig(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: strings.TrimSpace(cfg.Scheduler.Timezone)}
}

func mapFeedConfig(cfg *config.Config) (feed.Config, error) {
	fc := config.FeedConfig{}
	if cfg.Feed != nil {
		fc = *cfg.Feed
	}
	timeout, err := config.ParseDurationOrDefault("feed.timeout", fc.Timeout, 20*time.Second)
	if err != nil {
		return feed.Config{}, err
	}
	return feed.Config{
		Timeout:         timeout,
		UserAgent:       fc.UserAgent,
		RatePerSec:      fc.RatePerSec,
		Burst:           fc.Burst,
		MaxBodyBytes:    fc.MaxBodyBytes,
		MaxContentChars: fc.MaxContentChars,
	}, nil
}

func mapGenerateConfig(cfg *config.Config) (generate.Config, error) {
	gc := config.GenerationConfig{}
	if cfg.Generation != nil {
		gc = *cfg.Generation
	}
	timeout, err := config.ParseDurationField("generation.timeout", gc.Timeout)
	if err != nil {
		return generate.Config{}, err
	}
	return generate.Config{
		Timeout:          timeout,
		AnthropicBaseURL: gc.AnthropicBaseURL,
		OpenAIBaseURL:    gc.OpenAIBaseURL,
		MaxRetries:       gc.MaxRetries,
	}, nil
}

func mapPublishConfig(cfg *config.Config) (publish.Config, error) {
	pc := config.PublisherConfig{}
	if cfg.Publisher != nil {
		pc = *cfg.Publisher
	}
	timeout, err := config.ParseDurationOrDefault("publisher.timeout", pc.Timeout, 30*time.Second)
	if err != nil {
		return publish.Config{}, err
	}
	return publish.Config{BaseURL: pc.BaseURL, Timeout: timeout, RatePerSec: pc.RatePerSec}, nil
}

// mapMailerConfig returns ok=false when no SMTP relay is configured; the
// approval email step is then skipped.
func mapMailerConfig(cfg *config.Config) (mailer.Config, bool, error) {
	if cfg.Email == nil || strings.TrimSpace(cfg.Email.Host) == "" {
		return mailer.Config{}, false, nil
	}
	ec := *cfg.Email
	timeout, err := config.ParseDurationOrDefault("email.timeout", ec.Timeout, 15*time.Second)
	if err != nil {
		return mailer.Config{}, false, err
	}
	return mailer.Config{
		Host:     strings.TrimSpace(ec.Host),
		Port:     ec.Port,
		Username: ec.Username,
		From:     ec.From,
		TLS:      ec.TLS,
		Timeout:  timeout,
	}, true, nil
}

func mapAPIConfig(cfg *config.Config) (api.Config, error) {
	sc := cfg.Server
	read, err := config.ParseDurationOrDefault("server.read_timeout", sc.ReadTimeout, 15*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	// Write timeout stays 0 unless set so /debug/pprof/profile can stream.
	write, err := config.ParseDurationField("server.write_timeout", sc.WriteTimeout)
	if err != nil {
		return api.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("server.idle_timeout", sc.IdleTimeout, 60*time.Second)
	if err != nil {
		return api.Config{}, err
	}
	return api.Config{
		Addr:         sc.Addr,
		Debug:        sc.Debug,
		ReadTimeout:  read,
		WriteTimeout: write,
		IdleTimeout:  idle,
		Pprof: api.PprofConfig{
			Enabled:              cfg.Pprof.Enabled,
			Prefix:               cfg.Pprof.Prefix,
			Token:                cfg.Pprof.Token,
			MutexProfileFraction: cfg.Pprof.MutexProfileFraction,
			BlockProfileRate:     cfg.Pprof.BlockProfileRate,
		},
	}, nil
}

func publicBaseURL(cfg *config.Config) string {
	if u := strings.TrimRight(strings.TrimSpace(cfg.Server.PublicBaseURL), "/"); u != "" {
		return u
	}
	addr := strings.TrimSpace(cfg.Server.Addr)
	if addr == "" {
		addr = ":8080"
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func metricsEnabled(cfg *config.Config) bool {
	return cfg.Metrics == nil || cfg.Metrics.Enabled
}
