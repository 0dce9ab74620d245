package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"albowatch/internal/transport"
	"albowatch/pkg/tgui"
)

const (
	tgQueueSize   = 64
	tgSendTimeout = 10 * time.Second
	tgMaxFields   = 16
	tgValueRunes  = 300
	tgMsgRunes    = 800
)

// telegramSink is a zerolog.LevelWriter that forwards events to a chat.
// Writes never block: events beyond the rate limit or the queue are dropped.
type telegramSink struct {
	sender transport.Sender
	queue  chan tgEvent

	mu      sync.Mutex
	enabled bool
	target  transport.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter

	pending atomic.Int64
	start   sync.Once
	cancel  context.CancelFunc
	done    chan struct{}
}

type tgEvent struct {
	to   transport.ChatTarget
	text string
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{
		sender: sender,
		queue:  make(chan tgEvent, tgQueueSize),
		done:   make(chan struct{}),
	}
}

// configure reports whether the sink should be part of the writer set.
func (t *telegramSink) configure(cfg TelegramConfig) bool {
	t.mu.Lock()
	t.enabled = cfg.Enabled && !cfg.Target.IsZero()
	t.target = cfg.Target
	t.min = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := max(1, cfg.RatePerSec)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	enabled := t.enabled
	t.mu.Unlock()

	if !enabled {
		return false
	}
	t.start.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		go t.run(ctx)
	})
	return true
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	ok := t.enabled && level >= t.min && t.limiter.Allow()
	to := t.target
	t.mu.Unlock()
	if !ok {
		return len(p), nil
	}

	ev := tgEvent{to: to, text: formatEvent(p)}
	t.pending.Add(1)
	select {
	case t.queue <- ev:
	default:
		t.pending.Add(-1)
	}
	return len(p), nil
}

func (t *telegramSink) run(ctx context.Context) {
	defer close(t.done)
	opt := &transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.queue:
			sctx, cancel := context.WithTimeout(ctx, tgSendTimeout)
			_, _ = t.sender.SendText(sctx, ev.to, ev.text, opt)
			cancel()
			t.pending.Add(-1)
		}
	}
}

// close waits for queued events to go out, giving up when ctx is done.
func (t *telegramSink) close(ctx context.Context) error {
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	var err error
wait:
	for t.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			err = fmt.Errorf("logx: %d telegram events dropped: %w", t.pending.Load(), ctx.Err())
			break wait
		case <-tick.C:
		}
	}

	t.mu.Lock()
	t.enabled = false
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-t.done
	}
	return err
}

// formatEvent renders one zerolog JSON line as Telegram HTML:
//
//	<b>albowatch WARN</b> message
//	<pre>key: value
//	key: value</pre>
//
// Keys are sorted so repeated events read the same. Lines that are not
// JSON are sent verbatim.
func formatEvent(p []byte) string {
	p = bytes.TrimSpace(p)
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return tgui.Esc(tgui.TruncRunes(string(p), tgMsgRunes)).String()
	}

	level, _ := m[zerolog.LevelFieldName].(string)
	msg, _ := m[zerolog.MessageFieldName].(string)
	for _, k := range []string{zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.TimestampFieldName, zerolog.CallerFieldName} {
		delete(m, k)
	}

	var b strings.Builder
	b.WriteString(tgui.B("albowatch " + strings.ToUpper(level)).String())
	if msg != "" {
		b.WriteString(" ")
		b.WriteString(tgui.Esc(tgui.TruncRunes(msg, tgMsgRunes)).String())
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if len(keys) == 0 {
		return b.String()
	}

	lines := make([]string, 0, min(len(keys), tgMaxFields)+1)
	for i, k := range keys {
		if i == tgMaxFields {
			lines = append(lines, fmt.Sprintf("(+%d more)", len(keys)-tgMaxFields))
			break
		}
		lines = append(lines, k+": "+tgui.TruncRunes(fmt.Sprint(m[k]), tgValueRunes))
	}
	b.WriteString("\n")
	b.WriteString(tgui.Pre(strings.Join(lines, "\n")).String())
	return b.String()
}
