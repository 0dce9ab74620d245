package config

import (
	"encoding/json"
	"strings"
)

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Every field is optional; Default() fills the gaps and ApplyEnv overlays
// secrets and deployment overrides from the environment.
type Config struct {
	Source    SourceConfig    `json:"source"`
	Filter    FilterConfig    `json:"filter"`
	Telegram  TelegramConfig  `json:"telegram"`
	History   HistoryConfig   `json:"history"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Watch     WatchConfig     `json:"watch"`
	Logging   LoggingConfig   `json:"logging"`
}

// SourceConfig describes the listing page.
type SourceConfig struct {
	URL string `json:"url"`
	// TableSelector is the CSS selector of the listing table.
	TableSelector string `json:"table_selector,omitempty"`
	FetchTimeout  string `json:"fetch_timeout,omitempty"`
	UserAgent     string `json:"user_agent,omitempty"`
	MaxBytes      int64  `json:"max_bytes,omitempty"`
}

// FilterConfig is the interest rule. An empty departments list lets every
// requester through; an empty keywords list matches nothing.
type FilterConfig struct {
	Keywords    []string `json:"keywords"`
	Departments []string `json:"departments"`
}

// TelegramConfig controls outbound messages.
//
// The token is looked up in this order: TELEGRAM_TOKEN, token, then the OS
// keyring entry named by keyring_account. Without a token or a chat id
// sending is disabled; runs still complete.
type TelegramConfig struct {
	Token          string  `json:"token,omitempty"`
	ChatID         ChatRef `json:"chat_id,omitempty"`
	ThreadID       int     `json:"thread_id,omitempty"`
	KeyringAccount string  `json:"keyring_account,omitempty"`
	APIURL         string  `json:"api_url,omitempty"`

	SendTimeout   string `json:"send_timeout,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
}

// HistoryConfig selects the seen-id store.
//
// Driver values:
//   - "file": JSON array of ids (default)
//   - "sqlite": SQLite database
type HistoryConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HeartbeatConfig sends a daily liveness message when a run starts inside
// [schedule fire time, fire time + window).
type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule,omitempty"` // 5-field cron
	Window   string `json:"window,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// WatchConfig is used by the long-running mode only.
type WatchConfig struct {
	// Schedule accepts a cron spec, "@every 10m", a bare duration ("10m")
	// or an "HH:MM" interval ("00:30" runs every half hour).
	Schedule string `json:"schedule,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  bool              `json:"console"`
	File     FileLogConfig     `json:"file"`
	Telegram TelegramLogConfig `json:"telegram"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TelegramLogConfig forwards warnings and errors to the alert chat.
type TelegramLogConfig struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// ChatRef is a chat id written either as a JSON/YAML number or a string.
type ChatRef string

func (c *ChatRef) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" {
		*c = ""
		return nil
	}
	if strings.HasPrefix(s, `"`) {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*c = ChatRef(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*c = ChatRef(n.String())
	return nil
}
