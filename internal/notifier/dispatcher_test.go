package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"albowatch/internal/bulletin"
	"albowatch/internal/transport"
	logx "albowatch/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	opts  []*transport.SendOptions
	to    []transport.ChatTarget
	fails int // number of leading calls that fail
	calls int
	block bool
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return transport.MessageRef{}, ctx.Err()
	}
	if n <= f.fails {
		return transport.MessageRef{}, errors.New("boom")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	f.opts = append(f.opts, opt)
	f.to = append(f.to, to)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: n}, nil
}

var target = transport.ChatTarget{ChatID: -100123, ThreadID: 4}

func newDispatcher(s transport.Sender, mod func(*Config)) *Dispatcher {
	cfg := Config{
		Target:     target,
		ListingURL: "https://www.uniud.it/it/albo-ufficiale",
		RatePerSec: 100,
		RetryBase:  time.Millisecond,
	}
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg, s, logx.Nop())
}

func TestNotify_FormatsRecord(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	r := bulletin.Record{
		ID:        "12",
		Subject:   "Concorso genetica",
		Requester: "DIP. DARU – SCIENZE",
		Link:      "https://x",
	}
	if err := d.Notify(context.Background(), r); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.sent))
	}
	text := s.sent[0]
	for _, want := range []string{
		"🚨 <b>NUOVO BANDO RILEVATO!</b> 🚨",
		"🏢 <b>Da:</b> DIP. DARU – SCIENZE",
		"📄 <b>Oggetto:</b> Concorso genetica",
		`🔗 <a href="https://x">Link al bando</a>`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("message missing %q:\n%s", want, text)
		}
	}
	if s.opts[0] == nil || s.opts[0].ParseMode != transport.ParseModeHTML {
		t.Errorf("parse mode = %+v, want HTML", s.opts[0])
	}
	if s.to[0] != target {
		t.Errorf("target = %+v", s.to[0])
	}
}

func TestNotify_EscapesMarkup(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	r := bulletin.Record{
		ID:        "13",
		Subject:   "<b>x</b>",
		Requester: `A & B "C"`,
		Link:      `https://x/?a=1&b="2"`,
	}
	if err := d.Notify(context.Background(), r); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	text := s.sent[0]
	if strings.Contains(text, "<b>x</b>") {
		t.Fatalf("subject markup leaked into message:\n%s", text)
	}
	if !strings.Contains(text, "&lt;b&gt;x&lt;/b&gt;") {
		t.Errorf("subject not escaped:\n%s", text)
	}
	if !strings.Contains(text, "A &amp; B &#34;C&#34;") {
		t.Errorf("requester not escaped:\n%s", text)
	}
	if !strings.Contains(text, `href="https://x/?a=1&amp;b=&#34;2&#34;"`) {
		t.Errorf("href not escaped:\n%s", text)
	}
}

func TestNotify_ResolvesRelativeLink(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	r := bulletin.Record{ID: "14", Subject: "s", Requester: "r", Link: "/it/albo-ufficiale/atto/14"}
	if err := d.Notify(context.Background(), r); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if !strings.Contains(s.sent[0], `href="https://www.uniud.it/it/albo-ufficiale/atto/14"`) {
		t.Errorf("link not resolved:\n%s", s.sent[0])
	}
}

func TestNotify_NoLinkOmitsLinkLine(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	if err := d.Notify(context.Background(), bulletin.Record{ID: "15", Subject: "s", Requester: "r"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if strings.Contains(s.sent[0], "<a ") {
		t.Errorf("unexpected link line:\n%s", s.sent[0])
	}
}

func TestNotify_Disabled(t *testing.T) {
	tests := []struct {
		name   string
		sender transport.Sender
		target transport.ChatTarget
	}{
		{name: "no sender", sender: nil, target: target},
		{name: "no recipient", sender: &fakeSender{}, target: transport.ChatTarget{}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			d := New(Config{Target: tt.target}, tt.sender, logx.Nop())
			if d.Enabled() {
				t.Fatal("Enabled() = true")
			}
			err := d.Notify(context.Background(), bulletin.Record{ID: "1"})
			if !errors.Is(err, ErrDisabled) {
				t.Fatalf("err = %v, want ErrDisabled", err)
			}
		})
	}
}

func TestNotify_RetriesThenSucceeds(t *testing.T) {
	s := &fakeSender{fails: 1}
	d := newDispatcher(s, func(c *Config) { c.RetryMax = 2 })

	if err := d.Notify(context.Background(), bulletin.Record{ID: "1", Subject: "s"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if s.calls != 2 || len(s.sent) != 1 {
		t.Fatalf("calls=%d sent=%d", s.calls, len(s.sent))
	}
}

func TestNotify_SendError(t *testing.T) {
	s := &fakeSender{fails: 10}
	d := newDispatcher(s, func(c *Config) { c.RetryMax = 2 })

	err := d.Notify(context.Background(), bulletin.Record{ID: "77", Subject: "s"})
	var se *SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SendError", err)
	}
	if se.RecordID != "77" || se.Attempts != 3 {
		t.Fatalf("SendError = %+v", se)
	}
	if s.calls != 3 {
		t.Fatalf("calls = %d, want 3", s.calls)
	}
}

func TestNotify_SendTimeout(t *testing.T) {
	s := &fakeSender{block: true}
	d := newDispatcher(s, func(c *Config) { c.SendTimeout = 30 * time.Millisecond })

	start := time.Now()
	err := d.Notify(context.Background(), bulletin.Record{ID: "1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("send timeout not honoured: %s", time.Since(start))
	}
}

func TestHeartbeat(t *testing.T) {
	s := &fakeSender{}
	d := newDispatcher(s, nil)

	now := time.Date(2026, 3, 2, 6, 5, 0, 0, time.UTC)
	if err := d.Heartbeat(context.Background(), now); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if !strings.Contains(s.sent[0], "HEARTBEAT GIORNALIERO") || !strings.Contains(s.sent[0], "06:05") {
		t.Fatalf("heartbeat text:\n%s", s.sent[0])
	}
}

func TestResolveLink(t *testing.T) {
	t.Parallel()
	base := "https://www.uniud.it/it/albo-ufficiale"
	tests := []struct {
		base, href, want string
	}{
		{base, "", ""},
		{base, "https://other.example/a", "https://other.example/a"},
		{base, "/doc/1.pdf", "https://www.uniud.it/doc/1.pdf"},
		{base, "atto?id=3", "https://www.uniud.it/it/atto?id=3"},
		{"", "/doc/1.pdf", "/doc/1.pdf"},
		{"not a url", "/doc/1.pdf", "/doc/1.pdf"},
	}
	for _, tt := range tests {
		if got := ResolveLink(tt.base, tt.href); got != tt.want {
			t.Errorf("ResolveLink(%q, %q) = %q, want %q", tt.base, tt.href, got, tt.want)
		}
	}
}
