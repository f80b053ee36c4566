package config

import (
	"reflect"
	"sort"
	"strings"

	logx "newsbot/pkg/logx"
)

// Restart-only sections: their components are built once at startup.
var restartSections = map[string]bool{
	"storage":    true,
	"feed":       true,
	"generation": true,
	"publisher":  true,
	"email":      true,
	"metrics":    true,
}

// RequiresRestart reports whether section only takes effect after a
// process restart.
func RequiresRestart(section string) bool { return restartSections[section] }

// SummarizeConfigChange returns the sorted names of changed sections and
// safe log fields describing them. Secrets are reported as set/unset only.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	var changed []string
	var attrs []logx.Field
	mark := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}

	if !reflect.DeepEqual(oldCfg.Server, newCfg.Server) {
		mark("server",
			logx.String("server.addr", strings.TrimSpace(newCfg.Server.Addr)),
			logx.String("server.public_base_url", strings.TrimSpace(newCfg.Server.PublicBaseURL)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Pprof, newCfg.Pprof) {
		mark("pprof",
			logx.Bool("pprof.enabled", newCfg.Pprof.Enabled),
			logx.String("pprof.prefix", strings.TrimSpace(newCfg.Pprof.Prefix)),
			logx.Bool("pprof.token_set", strings.TrimSpace(newCfg.Pprof.Token) != ""),
		)
	}
	if strings.TrimSpace(oldCfg.Scheduler.Timezone) != strings.TrimSpace(newCfg.Scheduler.Timezone) {
		mark("scheduler", logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)))
	}
	if !reflect.DeepEqual(oldCfg.TaskEngine, newCfg.TaskEngine) {
		te := deref(newCfg.TaskEngine)
		mark("task_engine",
			logx.Int("task_engine.workers", te.Workers),
			logx.Int("task_engine.queue_size", te.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(te.DefaultTimeout)),
		)
	}
	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		st := deref(newCfg.Storage)
		mark("storage",
			logx.String("storage.driver", strings.TrimSpace(st.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(st.Path) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Feed, newCfg.Feed) {
		mark("feed")
	}
	if !reflect.DeepEqual(oldCfg.Generation, newCfg.Generation) {
		mark("generation")
	}
	if !reflect.DeepEqual(oldCfg.Publisher, newCfg.Publisher) {
		mark("publisher", logx.String("publisher.base_url", deref(newCfg.Publisher).BaseURL))
	}
	if !reflect.DeepEqual(oldCfg.Email, newCfg.Email) {
		em := deref(newCfg.Email)
		mark("email", logx.String("email.host", em.Host), logx.Int("email.port", em.Port))
	}
	if !reflect.DeepEqual(oldCfg.Metrics, newCfg.Metrics) {
		mark("metrics", logx.Bool("metrics.enabled", deref(newCfg.Metrics).Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}
