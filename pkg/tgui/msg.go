package tgui

import (
	"context"
	"strings"

	"albowatch/internal/transport"
)

// Message is rendered text plus the options it must be sent with.
type Message struct {
	Text string
	Opt  *transport.SendOptions
}

func (m Message) Send(ctx context.Context, s transport.Sender, to transport.ChatTarget) (transport.MessageRef, error) {
	opt := m.Opt
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	return s.SendText(ctx, to, m.Text, opt)
}

// Builder assembles a message one line at a time. It starts in HTML mode
// with link previews off; every value passed in is plain text and is
// escaped as needed.
type Builder struct {
	opt   transport.SendOptions
	lines []string
}

func New() *Builder {
	return &Builder{opt: transport.SendOptions{ParseMode: transport.ParseModeHTML, DisablePreview: true}}
}

// ParseMode switches between "HTML" and plain text ("").
func (b *Builder) ParseMode(mode string) *Builder {
	b.opt.ParseMode = strings.TrimSpace(mode)
	return b
}

func (b *Builder) DisablePreview(v bool) *Builder {
	b.opt.DisablePreview = v
	return b
}

func (b *Builder) isHTML() bool { return strings.EqualFold(b.opt.ParseMode, transport.ParseModeHTML) }

// text escapes s in HTML mode.
func (b *Builder) text(s string) string {
	if b.isHTML() {
		return Esc(s).String()
	}
	return s
}

func (b *Builder) bold(s string) string {
	if b.isHTML() {
		return B(s).String()
	}
	return s
}

func (b *Builder) add(emoji, body string) *Builder {
	if e := strings.TrimSpace(emoji); e != "" {
		body = e + " " + body
	}
	b.lines = append(b.lines, body)
	return b
}

// Title adds a bold heading with emoji on both sides. An empty title is
// dropped.
func (b *Builder) Title(emoji, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	body := b.bold(title)
	if e := strings.TrimSpace(emoji); e != "" {
		body += " " + e
	}
	return b.add(emoji, body)
}

func (b *Builder) Line(s string) *Builder {
	if strings.TrimSpace(s) == "" {
		return b.Blank()
	}
	return b.add("", b.text(s))
}

func (b *Builder) Blank() *Builder {
	b.lines = append(b.lines, "")
	return b
}

// Field adds "key: value" with the key in bold.
func (b *Builder) Field(emoji, key, value string) *Builder {
	key = strings.TrimSpace(key)
	if key == "" {
		return b
	}
	return b.add(emoji, b.bold(key+":")+" "+b.text(strings.TrimSpace(value)))
}

// Link adds a link line; plain text mode writes "text: url". A blank url
// adds nothing.
func (b *Builder) Link(emoji, text, url string) *Builder {
	url = strings.TrimSpace(url)
	if url == "" {
		return b
	}
	if b.isHTML() {
		return b.add(emoji, Link(text, url).String())
	}
	return b.add(emoji, text+": "+url)
}

func (b *Builder) Build() Message {
	opt := b.opt
	return Message{
		Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"),
		Opt:  &opt,
	}
}
