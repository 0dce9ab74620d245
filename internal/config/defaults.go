package config

import (
	"os"
	"strings"
)

// Defaults for the University of Udine bulletin board.
const (
	DefaultURL           = "https://www.uniud.it/it/albo-ufficiale"
	DefaultTableSelector = "table.table_albo"
	DefaultFetchTimeout  = "15s"
	DefaultUserAgent     = "albowatch/1.0"
	DefaultMaxBytes      = 10 * 1024 * 1024
	DefaultSendTimeout   = "10s"
	DefaultHistoryPath   = "./storia.json"
	DefaultHeartbeat     = "0 6 * * *"
	DefaultHeartbeatWin  = "15m"
	DefaultWatchSchedule = "10m"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvToken       = "TELEGRAM_TOKEN"
	EnvChatID      = "TELEGRAM_CHAT_ID"
	EnvURL         = "ALBOWATCH_URL"
	EnvHistoryPath = "ALBOWATCH_HISTORY_PATH"
	EnvLogLevel    = "ALBOWATCH_LOG_LEVEL"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			URL:           DefaultURL,
			TableSelector: DefaultTableSelector,
			FetchTimeout:  DefaultFetchTimeout,
			UserAgent:     DefaultUserAgent,
			MaxBytes:      DefaultMaxBytes,
		},
		Filter: FilterConfig{
			Keywords:    []string{"genetica", "bios-14"},
			Departments: []string{"DARU"},
		},
		Telegram: TelegramConfig{
			SendTimeout:   DefaultSendTimeout,
			RatePerSec:    1,
			RetryMax:      1,
			RetryBase:     "1s",
			RetryMaxDelay: "10s",
		},
		History: HistoryConfig{
			Driver:      "file",
			Path:        DefaultHistoryPath,
			BusyTimeout: "5s",
		},
		Heartbeat: HeartbeatConfig{
			Enabled:  true,
			Schedule: DefaultHeartbeat,
			Window:   DefaultHeartbeatWin,
			Timezone: "UTC",
		},
		Watch: WatchConfig{Schedule: DefaultWatchSchedule},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    FileLogConfig{Path: "./albowatch.log"},
			Telegram: TelegramLogConfig{
				MinLevel:   "warn",
				RatePerSec: 1,
			},
		},
	}
}

// fillDefaults sets every empty scalar to its default. Lists are left alone:
// an explicit empty keywords or departments list is meaningful.
func (c *Config) fillDefaults() {
	d := Default()
	setStr(&c.Source.URL, d.Source.URL)
	setStr(&c.Source.TableSelector, d.Source.TableSelector)
	setStr(&c.Source.FetchTimeout, d.Source.FetchTimeout)
	setStr(&c.Source.UserAgent, d.Source.UserAgent)
	if c.Source.MaxBytes <= 0 {
		c.Source.MaxBytes = d.Source.MaxBytes
	}

	setStr(&c.Telegram.SendTimeout, d.Telegram.SendTimeout)
	setStr(&c.Telegram.RetryBase, d.Telegram.RetryBase)
	setStr(&c.Telegram.RetryMaxDelay, d.Telegram.RetryMaxDelay)
	if c.Telegram.RatePerSec <= 0 {
		c.Telegram.RatePerSec = d.Telegram.RatePerSec
	}

	setStr(&c.History.Driver, d.History.Driver)
	setStr(&c.History.Path, d.History.Path)
	setStr(&c.History.BusyTimeout, d.History.BusyTimeout)

	setStr(&c.Heartbeat.Schedule, d.Heartbeat.Schedule)
	setStr(&c.Heartbeat.Window, d.Heartbeat.Window)
	setStr(&c.Heartbeat.Timezone, d.Heartbeat.Timezone)

	setStr(&c.Watch.Schedule, d.Watch.Schedule)

	setStr(&c.Logging.Level, d.Logging.Level)
	setStr(&c.Logging.File.Path, d.Logging.File.Path)
	setStr(&c.Logging.Telegram.MinLevel, d.Logging.Telegram.MinLevel)
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = d.Logging.Telegram.RatePerSec
	}
}

func setStr(dst *string, def string) {
	if strings.TrimSpace(*dst) == "" {
		*dst = def
	}
}

// ApplyEnv overlays environment variables. getenv defaults to os.LookupEnv
// semantics: unset and empty variables are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = lookupEnv
	}
	c.Telegram.Token = getEnv(getenv, EnvToken, c.Telegram.Token)
	c.Telegram.ChatID = ChatRef(getEnv(getenv, EnvChatID, string(c.Telegram.ChatID)))
	c.Source.URL = getEnv(getenv, EnvURL, c.Source.URL)
	c.History.Path = getEnv(getenv, EnvHistoryPath, c.History.Path)
	c.Logging.Level = getEnv(getenv, EnvLogLevel, c.Logging.Level)
}

func lookupEnv(key string) string {
	v, _ := os.LookupEnv(key)
	return v
}

func getEnv(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}
