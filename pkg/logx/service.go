package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"albowatch/internal/transport"
)

const defaultLogPath = "./albowatch.log"

// Config selects the log level and sinks.
type Config struct {
	Level   string
	Console bool
	File    FileConfig

	Telegram TelegramConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// TelegramConfig forwards events at or above MinLevel to a chat. It is
// meant for warnings an operator must see, so it is rate limited.
type TelegramConfig struct {
	Enabled    bool
	Target     transport.ChatTarget
	MinLevel   string
	RatePerSec int
}

// Service owns the sinks behind every Logger it hands out. Apply rebuilds
// them without invalidating existing loggers.
type Service struct {
	mu   sync.Mutex
	root atomic.Pointer[zerolog.Logger]
	file *os.File

	tg *telegramSink
}

// New builds the service from cfg. sender may be nil, in which case the
// Telegram sink stays off whatever cfg says.
func New(cfg Config, sender transport.Sender) (*Service, Logger) {
	setGlobals()
	s := &Service{}
	if sender != nil {
		s.tg = newTelegramSink(sender)
	}
	boot := zerolog.New(newConsoleWriter(os.Stdout)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&boot)
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// Apply swaps level and sinks. Safe for concurrent use with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	prevFile := s.file
	s.file = nil
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = defaultLogPath
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logx: open %s: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	if s.tg != nil {
		if s.tg.configure(cfg.Telegram) {
			writers = append(writers, s.tg)
		}
	} else if cfg.Telegram.Enabled {
		fmt.Fprintln(os.Stderr, "logx: telegram sink enabled but no bot token; ignoring")
	}

	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stderr))
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	// Loggers built before the swap may still hold the old file for one
	// write; closing after the store keeps that write harmless.
	if prevFile != nil {
		_ = prevFile.Close()
	}
}

// Close flushes queued Telegram events until ctx is done, then releases
// the log file.
func (s *Service) Close(ctx context.Context) error {
	var err error
	if s.tg != nil {
		err = s.tg.close(ctx)
	}
	s.mu.Lock()
	if s.file != nil {
		if cerr := s.file.Close(); err == nil {
			err = cerr
		}
		s.file = nil
	}
	s.mu.Unlock()
	return err
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return def
	}
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return def
	}
	return lvl
}

// ValidLevel reports whether s names a level logx understands.
func ValidLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
		return true
	}
	return false
}
