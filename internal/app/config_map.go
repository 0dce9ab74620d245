package app

import (
	"fmt"
	"strings"
	"time"

	"albowatch/internal/config"
	"albowatch/internal/fetch"
	"albowatch/internal/heartbeat"
	"albowatch/internal/notifier"
	"albowatch/internal/storage"
	"albowatch/internal/transport"
	logx "albowatch/pkg/logx"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	hc := cfg.History
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	path := strings.TrimSpace(hc.Path)
	if path == "" {
		return storage.Config{}, fmt.Errorf("history.path is required")
	}
	switch driver {
	case "", "file", "json":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown history.driver: %s", hc.Driver)
	}
}

func mapFetchConfig(cfg *config.Config) (fetch.Config, error) {
	timeout, err := config.ParseDurationOrDefault("source.fetch_timeout", cfg.Source.FetchTimeout, fetch.DefaultTimeout)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		URL:       strings.TrimSpace(cfg.Source.URL),
		Timeout:   timeout,
		UserAgent: cfg.Source.UserAgent,
		MaxBytes:  cfg.Source.MaxBytes,
	}, nil
}

// chatTarget resolves the alert recipient. An unset chat id yields the zero
// target, which disables sending.
func chatTarget(cfg *config.Config) (transport.ChatTarget, error) {
	raw := strings.TrimSpace(string(cfg.Telegram.ChatID))
	if raw == "" {
		return transport.ChatTarget{}, nil
	}
	id, err := config.ParseChatID(raw)
	if err != nil {
		return transport.ChatTarget{}, err
	}
	return transport.ChatTarget{ChatID: id, ThreadID: cfg.Telegram.ThreadID}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	tc := cfg.Telegram
	target, err := chatTarget(cfg)
	if err != nil {
		return notifier.Config{}, err
	}
	sendTimeout, err := config.ParseDurationOrDefault("telegram.send_timeout", tc.SendTimeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	retryBase, err := config.ParseDurationOrDefault("telegram.retry_base", tc.RetryBase, time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("telegram.retry_max_delay", tc.RetryMaxDelay, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	if tc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("telegram.retry_max must be >= 0")
	}
	return notifier.Config{
		Target:        target,
		ListingURL:    strings.TrimSpace(cfg.Source.URL),
		SendTimeout:   sendTimeout,
		RatePerSec:    tc.RatePerSec,
		RetryMax:      tc.RetryMax,
		RetryBase:     retryBase,
		RetryMaxDelay: retryMaxDelay,
	}, nil
}

func mapHeartbeatConfig(cfg *config.Config) (heartbeat.Config, error) {
	hc := cfg.Heartbeat
	window, err := config.ParseDurationOrDefault("heartbeat.window", hc.Window, 15*time.Minute)
	if err != nil {
		return heartbeat.Config{}, err
	}
	loc, err := loadLocation("heartbeat.timezone", hc.Timezone)
	if err != nil {
		return heartbeat.Config{}, err
	}
	return heartbeat.Config{
		Enabled:  hc.Enabled,
		Schedule: strings.TrimSpace(hc.Schedule),
		Window:   window,
		Location: loc,
	}, nil
}

// mapLogConfig maps the logging section. The Telegram sink reuses the alert
// chat; logging.telegram.thread_id overrides the topic when set.
func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	target, _ := chatTarget(cfg)
	if lc.Telegram.ThreadID != 0 {
		target.ThreadID = lc.Telegram.ThreadID
	}
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			Target:     target,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func loadLocation(field, tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid %q: %w", field, tz, err)
	}
	return loc, nil
}
