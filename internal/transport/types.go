package transport

import "context"

// ParseMode values understood by the Telegram Bot API.
const (
	ParseModeHTML = "HTML"
	ParseModeNone = ""
)

// ChatTarget identifies the recipient of a message.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender is the outbound messaging primitive: recipient, formatted text,
// format mode in; message reference or error out.
//
// Implementations must honour ctx cancellation/deadline where the underlying
// client allows it, and must be safe to call sequentially from one goroutine.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
