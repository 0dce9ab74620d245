package adapter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "albowatch/internal/transport"
	logx "albowatch/pkg/logx"
)

// Config configures the send-only Telegram adapter.
type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint (tests, local bot API servers).
	APIURL      string
	SendTimeout time.Duration
}

// Adapter sends messages through the Telegram Bot API. It never polls for
// updates.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     strings.TrimRight(strings.TrimSpace(cfg.APIURL), "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log, bot: b}, nil
}

// maxMessageRunes stays under the Bot API's 4096 character cap with room
// for entity expansion.
const maxMessageRunes = 4000

// chunkText cuts s into pieces of at most limit runes. A cut prefers the
// last newline in the window, unless that would leave a piece shorter than
// a third of the limit. In HTML mode every piece is cut outside any element
// (so <b>..</b> and <a ..>..</a> stay in one piece) and never inside an
// entity; an element longer than limit is cut at a tag boundary instead.
func chunkText(s string, limit int, html bool) []string {
	if limit <= 0 {
		limit = maxMessageRunes
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return []string{s}
	}

	var out []string
	for lo := 0; lo < len(rs); {
		hi := min(lo+limit, len(rs))
		if hi < len(rs) {
			if html {
				hi = htmlCutPoint(rs, lo, hi, limit)
			} else {
				hi = newlineCut(rs, lo, hi, limit)
			}
		}
		out = append(out, strings.TrimRight(string(rs[lo:hi]), "\n"))
		for lo = hi; lo < len(rs) && rs[lo] == '\n'; lo++ {
		}
	}
	return out
}

func newlineCut(rs []rune, lo, hi, limit int) int {
	for i := hi - 1; i-lo >= limit/3; i-- {
		if rs[i] == '\n' {
			return i + 1
		}
	}
	return hi
}

// htmlCutPoint scans rs[lo:hi] tracking open elements and returns the last
// position where nothing is open, preferring one right after a newline.
func htmlCutPoint(rs []rune, lo, hi, limit int) int {
	var (
		depth           int
		inTag, inEntity bool
		closing         bool
	)
	lastSafe, lastNL := -1, -1
	safeAt := func(i int) {
		if i <= lo || inTag || inEntity || depth > 0 {
			return
		}
		lastSafe = i
		if rs[i-1] == '\n' && i-lo >= limit/3 {
			lastNL = i
		}
	}
	for i := lo; i < hi; i++ {
		safeAt(i)
		switch r := rs[i]; {
		case inTag:
			if r == '>' {
				inTag = false
				if closing {
					depth = max(0, depth-1)
				} else {
					depth++
				}
			}
		case inEntity:
			inEntity = r != ';'
		case r == '<':
			inTag = true
			closing = i+1 < len(rs) && rs[i+1] == '/'
		case r == '&':
			inEntity = true
		}
	}
	safeAt(hi)

	switch {
	case lastNL > 0:
		return lastNL
	case lastSafe > 0:
		return lastSafe
	default:
		return tagBoundary(rs, lo, hi)
	}
}

// tagBoundary moves hi back off a dangling tag or entity.
func tagBoundary(rs []rune, lo, hi int) int {
	for i := hi - 1; i > lo+1; i-- {
		switch rs[i] {
		case '>', ';':
			return hi
		case '<':
			return i
		case '&':
			if hi-i <= 10 {
				return i
			}
			return hi
		}
	}
	return hi
}

// SendText delivers text to the target, splitting it into several messages
// when it exceeds the Telegram limit. The returned ref points at the first
// message. The Bot API call itself is bounded by the HTTP client timeout;
// ctx cancellation abandons the in-flight call.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	if to.IsZero() {
		return kit.MessageRef{}, errors.New("telegram: empty chat id")
	}

	chunks := chunkText(text, maxMessageRunes, strings.EqualFold(opt.ParseMode, kit.ParseModeHTML))
	if len(chunks) == 0 {
		chunks = []string{""}
	}

	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return first, err
		}

		sendOpt := &tele.SendOptions{
			ParseMode:             tele.ParseMode(opt.ParseMode),
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		}

		msg, err := a.send(ctx, chat, chunk, sendOpt)
		if err != nil {
			return first, err
		}

		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	if len(chunks) > 1 {
		a.log.Debug("long message split", logx.Int("chunks", len(chunks)), logx.Int64("chat_id", to.ChatID))
	}

	return first, nil
}

type sendResult struct {
	msg *tele.Message
	err error
}

func (a *Adapter) send(ctx context.Context, chat *tele.Chat, text string, opt *tele.SendOptions) (*tele.Message, error) {
	done := make(chan sendResult, 1)
	go func() {
		msg, err := a.bot.Send(chat, text, opt)
		done <- sendResult{msg: msg, err: err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.msg == nil {
			return nil, errors.New("telegram: empty send response")
		}
		return r.msg, nil
	}
}
