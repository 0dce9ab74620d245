package config

import (
	"hash/fnv"
	"reflect"
	"strings"

	logx "albowatch/pkg/logx"
)

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured attrs for logging. Secrets (token, keyring account) are never
// included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 7)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Source != newCfg.Source {
		changed = append(changed, "source")
		attrs = append(attrs,
			logx.String("source.url", newCfg.Source.URL),
			logx.String("source.table_selector", newCfg.Source.TableSelector),
			logx.String("source.fetch_timeout", newCfg.Source.FetchTimeout),
		)
	}

	if !reflect.DeepEqual(oldCfg.Filter, newCfg.Filter) {
		changed = append(changed, "filter")
		attrs = append(attrs,
			logx.Strs("filter.keywords", newCfg.Filter.Keywords),
			logx.Strs("filter.departments", newCfg.Filter.Departments),
		)
	}

	// Telegram (never log token)
	if strings.TrimSpace(oldCfg.Telegram.Token) != strings.TrimSpace(newCfg.Telegram.Token) ||
		oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		oldCfg.Telegram.KeyringAccount != newCfg.Telegram.KeyringAccount ||
		oldCfg.Telegram.APIURL != newCfg.Telegram.APIURL ||
		oldCfg.Telegram.SendTimeout != newCfg.Telegram.SendTimeout ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec ||
		oldCfg.Telegram.RetryMax != newCfg.Telegram.RetryMax ||
		oldCfg.Telegram.RetryBase != newCfg.Telegram.RetryBase ||
		oldCfg.Telegram.RetryMaxDelay != newCfg.Telegram.RetryMaxDelay {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.Bool("telegram.chat_set", strings.TrimSpace(string(newCfg.Telegram.ChatID)) != ""),
			logx.String("telegram.send_timeout", newCfg.Telegram.SendTimeout),
			logx.Int("telegram.rate_per_sec", newCfg.Telegram.RatePerSec),
		)
	}

	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", newCfg.History.Driver),
			logx.String("history.path", newCfg.History.Path),
		)
	}

	if oldCfg.Heartbeat != newCfg.Heartbeat {
		changed = append(changed, "heartbeat")
		attrs = append(attrs,
			logx.Bool("heartbeat.enabled", newCfg.Heartbeat.Enabled),
			logx.String("heartbeat.schedule", newCfg.Heartbeat.Schedule),
		)
	}

	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs, logx.String("watch.schedule", newCfg.Watch.Schedule))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	return changed, attrs
}
