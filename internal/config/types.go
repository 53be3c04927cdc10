package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Notify    NotifyConfig    `json:"notify,omitempty"`
	Narrative NarrativeConfig `json:"narrative,omitempty"`
}

type TelegramConfig struct {
	// Token may be left empty in the file; TELEGRAM_BOT_TOKEN takes
	// precedence so the secret stays out of the config file.
	Token string `json:"token,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
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

// StorageConfig controls the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./sanbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// SchedulerConfig controls the recurring reminder/retrospective scheduler.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
}

// NotifyConfig controls the async outbound delivery pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifyConfig struct {
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`
}

// NarrativeConfig controls the Gemini interpretation layer.
// The API key comes from GEMINI_API_KEY, never from the file.
type NarrativeConfig struct {
	Enabled   bool   `json:"enabled"`
	Model     string `json:"model,omitempty"`      // default "gemini-2.0-flash"
	MaxTokens int    `json:"max_tokens,omitempty"` // default 600
	Timeout   string `json:"timeout,omitempty"`    // Go duration string
}
