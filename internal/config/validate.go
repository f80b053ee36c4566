package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

func durationRule(path string) validation.Rule {
	return validation.By(func(v interface{}) error {
		_, err := ParseDurationField(path, v.(string))
		return err
	})
}

var timezoneRule = validation.By(func(v interface{}) error {
	tz := strings.TrimSpace(v.(string))
	if tz == "" {
		return nil
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone %q", tz)
	}
	return nil
})

// Validate rejects values that would fail at wiring time, so a bad hot
// reload never replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	errs := validation.Errors{}
	put := func(key string, err error) {
		if err != nil {
			errs[key] = err
		}
	}

	s := cfg.Server
	put("server", validation.ValidateStruct(&s,
		validation.Field(&s.PublicBaseURL, is.URL),
		validation.Field(&s.ReadTimeout, durationRule("server.read_timeout")),
		validation.Field(&s.WriteTimeout, durationRule("server.write_timeout")),
		validation.Field(&s.IdleTimeout, durationRule("server.idle_timeout")),
	))

	sc := cfg.Scheduler
	put("scheduler", validation.ValidateStruct(&sc,
		validation.Field(&sc.Timezone, timezoneRule),
	))

	if te := cfg.TaskEngine; te != nil {
		put("task_engine", validation.ValidateStruct(te,
			validation.Field(&te.Workers, validation.Min(0)),
			validation.Field(&te.QueueSize, validation.Min(0)),
			validation.Field(&te.HistorySize, validation.Min(0)),
			validation.Field(&te.DefaultTimeout, durationRule("task_engine.default_timeout")),
			validation.Field(&te.MaxQueueDelay, durationRule("task_engine.max_queue_delay")),
		))
	}
	if st := cfg.Storage; st != nil {
		put("storage", validation.ValidateStruct(st,
			validation.Field(&st.Driver, validation.In("", "sqlite", "sqlite3", "memory", "mem")),
			validation.Field(&st.BusyTimeout, durationRule("storage.busy_timeout")),
		))
	}
	if f := cfg.Feed; f != nil {
		put("feed", validation.ValidateStruct(f,
			validation.Field(&f.Timeout, durationRule("feed.timeout")),
			validation.Field(&f.RatePerSec, validation.Min(0.0)),
			validation.Field(&f.Burst, validation.Min(0)),
			validation.Field(&f.MaxBodyBytes, validation.Min(int64(0))),
			validation.Field(&f.MaxContentChars, validation.Min(0)),
		))
	}
	if g := cfg.Generation; g != nil {
		put("generation", validation.ValidateStruct(g,
			validation.Field(&g.Timeout, durationRule("generation.timeout")),
			validation.Field(&g.MaxRetries, validation.Min(0)),
			validation.Field(&g.AnthropicBaseURL, is.URL),
			validation.Field(&g.OpenAIBaseURL, is.URL),
		))
	}
	if p := cfg.Publisher; p != nil {
		put("publisher", validation.ValidateStruct(p,
			validation.Field(&p.BaseURL, is.URL),
			validation.Field(&p.Timeout, durationRule("publisher.timeout")),
			validation.Field(&p.RatePerSec, validation.Min(0.0)),
		))
	}
	if e := cfg.Email; e != nil {
		put("email", validation.ValidateStruct(e,
			validation.Field(&e.Port, validation.Min(0), validation.Max(65535)),
			validation.Field(&e.From, is.EmailFormat),
			validation.Field(&e.TLS, validation.In("", "starttls", "ssl", "none")),
			validation.Field(&e.Timeout, durationRule("email.timeout")),
		))
	}
	put("logging", validation.Validate(cfg.Logging.Level,
		validation.In("", "trace", "debug", "info", "warn", "error", "TRACE", "DEBUG", "INFO", "WARN", "ERROR")))

	if len(errs) == 0 {
		return nil
	}
	return errs
}
