package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "albowatch/pkg/logx"
)

// reloadDelay lets an editor finish writing before the file is parsed.
const reloadDelay = 250 * time.Millisecond

// Manager owns the current configuration. Load reads it once; Watch keeps
// it current while the process runs in watch mode.
type Manager struct {
	path   string
	getenv func(string) string

	mu       sync.RWMutex
	cfg      *Config
	lastHash uint64 // hash of the committed config; skips no-op rewrites

	// subsMu also serializes publish against Unsubscribe so a channel is
	// never sent on after it is closed.
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error
}

// NewManager creates a manager for path. An empty path means "defaults and
// environment only".
func NewManager(path string) *Manager {
	return &Manager{path: strings.TrimSpace(path), log: logx.Nop()}
}

// SetEnv replaces the environment lookup (tests).
func (m *Manager) SetEnv(getenv func(string) string) { m.getenv = getenv }

// Path returns the watched file path.
func (m *Manager) Path() string { return m.path }

func (m *Manager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs an extra check run by Watch before a reloaded
// config is committed.
func (m *Manager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads the file over the defaults, overlays the environment and
// validates the result. A missing file is not an error.
func (m *Manager) Parse() (*Config, error) {
	cfg := Default()
	if m.path != "" {
		b, err := os.ReadFile(m.path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			m.log.Debug("config file not found; using defaults", logx.String("path", m.path))
		case err != nil:
			return nil, err
		default:
			if err := decodeInto(m.path, b, cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", m.path, err)
			}
		}
	}
	cfg.fillDefaults()
	cfg.ApplyEnv(m.getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", m.path, err)
	}
	return cfg, nil
}

// decodeInto decodes b (JSON, or YAML coerced to JSON) over cfg. Unknown
// keys and trailing documents are errors.
func decodeInto(path string, b []byte, cfg *Config) error {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	jb, err := asJSON(path, b)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return err
	}
	switch err := dec.Decode(&struct{}{}); {
	case err == io.EOF:
		return nil
	case err == nil:
		return errors.New("invalid config: trailing data")
	default:
		return err
	}
}

// Load parses and commits the configuration.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

// Commit makes cfg the current configuration without notifying subscribers.
func (m *Manager) Commit(cfg *Config) {
	h := hashConfig(cfg)
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = h
	m.mu.Unlock()
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	return hashBytes(b)
}

// Subscribe returns a channel receiving every committed reload. A slow
// subscriber only ever misses intermediate configs, never the latest one.
func (m *Manager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, max(1, buffer))
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes ch.
func (m *Manager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Manager) publish(cfg *Config) {
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		for {
			select {
			case ch <- cfg:
			default:
				// Full: drop the oldest pending config and try again.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// reload parses the file and, when it changed and passes validation,
// commits and publishes it. Rejected edits keep the previous config.
func (m *Manager) reload(ctx context.Context) {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
		return
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return
	}

	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config reload rejected", logx.String("path", m.path), logx.Err(err))
			return
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
}

// Watch reloads the file on change until ctx is done. It watches the parent
// directory so editors that replace the file by rename are seen too.
//
// A broken watcher is reported as an error; the caller is expected to run
// Watch under a restarting supervisor.
func (m *Manager) Watch(ctx context.Context) error {
	if m.path == "" {
		<-ctx.Done()
		return nil
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watch: %w", err)
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("config watch %s: %w", dir, err)
	}
	m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()
	schedule := func() {
		timer.Stop()
		timer.Reset(reloadDelay)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			m.reload(ctx)
		case ev, ok := <-w.Events:
			if !ok {
				return errors.New("config watch: event channel closed")
			}
			if !strings.EqualFold(filepath.Base(ev.Name), file) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errors.New("config watch: error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				m.log.Warn("config watch overflow; forcing reload", logx.String("dir", dir))
				schedule()
				continue
			}
			m.log.Warn("config watch error", logx.String("dir", dir), logx.Err(err))
		}
	}
}
