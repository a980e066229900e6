// Package config loads the daemon configuration from a JSON or YAML file and
// watches it for changes.
package config

// Config is the whole file. Durations are Go duration strings ("30s", "2m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notifier  NotifierConfig  `json:"notifier"`
	Context   ContextConfig   `json:"context"`
	HTTP      HTTPConfig      `json:"http"`
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

// StorageConfig selects the database.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./run/cuckoo.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// SchedulerConfig controls the poll trigger that fires due reminders.
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
	Workers  int    `json:"workers"`
	// Timezone is an IANA name used for calendar math, restricted hours and
	// the 8 o'clock snooze. Empty means the host's local zone.
	Timezone    string `json:"timezone,omitempty"`
	FireTimeout string `json:"fire_timeout,omitempty"`
}

// NotifierConfig selects how reminders reach the user.
type NotifierConfig struct {
	Driver     string  `json:"driver"`
	RatePerSec float64 `json:"rate_per_sec"`
	Burst      int     `json:"burst"`
	Timeout    string  `json:"timeout"`

	Command    CommandNotifier    `json:"command"`
	Telegram   TelegramNotifier   `json:"telegram"`
	ServerChan ServerChanNotifier `json:"serverchan"`
}

type CommandNotifier struct {
	Path           string   `json:"path"`
	Args           []string `json:"args,omitempty"`
	ExpectResponse bool     `json:"expect_response"`
}

type TelegramNotifier struct {
	Token        string `json:"token"` // never logged
	ChatID       int64  `json:"chat_id"`
	ReplyTimeout string `json:"reply_timeout"`
	PollTimeout  string `json:"poll_timeout,omitempty"`
}

type ServerChanNotifier struct {
	SendKey string `json:"send_key"` // never logged
	BaseURL string `json:"base_url,omitempty"`
}

// ContextConfig selects the context detector.
type ContextConfig struct {
	Detector string   `json:"detector"`
	Static   string   `json:"static,omitempty"`
	Command  string   `json:"command,omitempty"`
	Args     []string `json:"args,omitempty"`
	Timeout  string   `json:"timeout,omitempty"`
}

type HTTPConfig struct {
	Enabled      bool   `json:"enabled"`
	Addr         string `json:"addr"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`

	// Pprof mounts /debug/pprof on the API listener. A token is required
	// when addr is not a loopback address.
	Pprof      bool   `json:"pprof,omitempty"`
	PprofToken string `json:"pprof_token,omitempty"` // never logged
}

// Default returns a config that runs without a file: console logging, a
// local SQLite database, the log notifier and the HTTP API on loopback.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "sqlite", Path: "./run/cuckoo.db", BusyTimeout: "5s"},
		Scheduler: SchedulerConfig{
			Enabled:     true,
			Interval:    "30s",
			Workers:     2,
			FireTimeout: "2m",
		},
		Notifier: NotifierConfig{
			Driver:     "log",
			RatePerSec: 1,
			Burst:      3,
			Timeout:    "90s",
			Telegram:   TelegramNotifier{ReplyTimeout: "60s", PollTimeout: "10s"},
		},
		Context: ContextConfig{Timeout: "5s"},
		HTTP: HTTPConfig{
			Enabled:      true,
			Addr:         "127.0.0.1:7001",
			ReadTimeout:  "10s",
			WriteTimeout: "30s",
		},
	}
}
