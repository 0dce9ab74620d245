package config

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"albowatch/internal/schedule"
	logx "albowatch/pkg/logx"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// ParseChatID parses a numeric Telegram chat id. Empty input yields 0.
func ParseChatID(raw string) (int64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.chat_id: %q is not a numeric chat id", raw)
	}
	return id, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if u, err := url.Parse(strings.TrimSpace(c.Source.URL)); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		add(fmt.Errorf("source.url: %q must be an absolute http(s) url", c.Source.URL))
	}
	if strings.TrimSpace(c.Source.TableSelector) == "" {
		add(errors.New("source.table_selector: must not be empty"))
	}
	if c.Source.MaxBytes < 0 {
		add(errors.New("source.max_bytes: must be >= 0"))
	}
	_, err := ParseDurationField("source.fetch_timeout", c.Source.FetchTimeout)
	add(err)

	_, err = ParseDurationField("telegram.send_timeout", c.Telegram.SendTimeout)
	add(err)
	_, err = ParseDurationField("telegram.retry_base", c.Telegram.RetryBase)
	add(err)
	_, err = ParseDurationField("telegram.retry_max_delay", c.Telegram.RetryMaxDelay)
	add(err)
	_, err = ParseChatID(string(c.Telegram.ChatID))
	add(err)
	if c.Telegram.RetryMax < 0 {
		add(errors.New("telegram.retry_max: must be >= 0"))
	}
	if c.Telegram.ThreadID < 0 {
		add(errors.New("telegram.thread_id: must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.History.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		add(fmt.Errorf("history.driver: unknown driver %q (want file or sqlite)", c.History.Driver))
	}
	if strings.TrimSpace(c.History.Path) == "" {
		add(errors.New("history.path: must not be empty"))
	}
	_, err = ParseDurationField("history.busy_timeout", c.History.BusyTimeout)
	add(err)

	if c.Heartbeat.Enabled {
		if _, err := cron.ParseStandard(c.Heartbeat.Schedule); err != nil {
			add(fmt.Errorf("heartbeat.schedule: %w", err))
		}
		_, err = ParseDurationField("heartbeat.window", c.Heartbeat.Window)
		add(err)
		if _, err := time.LoadLocation(c.Heartbeat.Timezone); err != nil {
			add(fmt.Errorf("heartbeat.timezone: %w", err))
		}
	}

	if _, err := schedule.Parse(c.Watch.Schedule); err != nil {
		add(fmt.Errorf("watch.schedule: %w", err))
	}
	if tz := strings.TrimSpace(c.Watch.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("watch.timezone: %w", err))
		}
	}

	if !logx.ValidLevel(c.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	if !logx.ValidLevel(c.Logging.Telegram.MinLevel) {
		add(fmt.Errorf("logging.telegram.min_level: unknown level %q", c.Logging.Telegram.MinLevel))
	}
	if c.Logging.File.Enabled && strings.TrimSpace(c.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	return errors.Join(errs...)
}
