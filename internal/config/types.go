package config

// Config is the process configuration file. Operator-editable newsletter
// settings live in storage, not here.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Server  ServerConfig  `json:"server"`
	Logging LoggingConfig `json:"logging"`
	Pprof   PprofConfig   `json:"pprof,omitempty"`

	// Scheduler controls the job registry (trigger side).
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of triggered runs.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Storage    *StorageConfig    `json:"storage,omitempty"`
	Feed       *FeedConfig       `json:"feed,omitempty"`
	Generation *GenerationConfig `json:"generation,omitempty"`
	Publisher  *PublisherConfig  `json:"publisher,omitempty"`
	Email      *EmailConfig      `json:"email,omitempty"`
	Metrics    *MetricsConfig    `json:"metrics,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"` // default ":8080"

	// PublicBaseURL prefixes approve/reject links in approval emails.
	PublicBaseURL string `json:"public_base_url"`

	Debug        bool   `json:"debug,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// TaskEngineConfig controls the task execution engine.
//
// Defaults (when fields are omitted/zero):
//   - workers: 1 (runs are serialized)
//   - queue_size: 64
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./newsbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type FeedConfig struct {
	Timeout         string  `json:"timeout,omitempty"`
	UserAgent       string  `json:"user_agent,omitempty"`
	RatePerSec      float64 `json:"rate_per_sec,omitempty"`
	Burst           int     `json:"burst,omitempty"`
	MaxBodyBytes    int64   `json:"max_body_bytes,omitempty"`
	MaxContentChars int     `json:"max_content_chars,omitempty"`
}

// GenerationConfig holds transport knobs for the AI providers. Provider,
// model and key are operator settings.
type GenerationConfig struct {
	Timeout          string `json:"timeout,omitempty"`
	MaxRetries       int    `json:"max_retries,omitempty"`
	AnthropicBaseURL string `json:"anthropic_base_url,omitempty"`
	OpenAIBaseURL    string `json:"openai_base_url,omitempty"`
}

type PublisherConfig struct {
	BaseURL    string  `json:"base_url,omitempty"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
}

// EmailConfig is the SMTP relay used for approval emails. The password is
// the operator's email API key from settings.
type EmailConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	From     string `json:"from"`
	TLS      string `json:"tls,omitempty"` // starttls (default), ssl, none
	Timeout  string `json:"timeout,omitempty"`
}

type MetricsConfig struct {
	Enabled bool `json:"enabled"`
}

// PprofConfig mounts net/http/pprof on the API listener.
//
// Token is compared against "Authorization: Bearer" or ?token=. Never log it.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Prefix  string `json:"prefix,omitempty"` // default: "/debug/pprof/"
	Token   string `json:"token,omitempty"`

	MutexProfileFraction int `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int `json:"block_profile_rate,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the job registry.
type SchedulerConfig struct {
	// Timezone in which schedule times of day are interpreted. Empty means
	// the process local zone.
	Timezone string `json:"timezone,omitempty"`
}
