// Package fetch downloads the bulletin-board listing page.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultMaxBytes  = 10 * 1024 * 1024
	DefaultUserAgent = "albowatch/1.0"
	maxRedirects     = 5
)

// Config configures the fetcher.
type Config struct {
	URL       string
	Timeout   time.Duration // whole request, headers and body. Default: 15s.
	UserAgent string
	MaxBytes  int64 // response body cap. Default: 10MB.
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if strings.TrimSpace(c.UserAgent) == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Error is a transport failure while fetching the listing. StatusCode is
// zero when no response was received.
type Error struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: http %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrTooLarge is returned when the body exceeds Config.MaxBytes.
var ErrTooLarge = errors.New("response body too large")

// Fetcher performs the listing GET.
type Fetcher struct {
	client *http.Client
	config Config
}

func New(cfg Config) *Fetcher {
	cfg.defaults()
	return &Fetcher{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				return nil
			},
		},
		config: cfg,
	}
}

// URL returns the configured listing URL.
func (f *Fetcher) URL() string { return f.config.URL }

// Fetch returns the listing document as text. Any non-2xx status, network
// error, timeout or oversized body yields a *Error.
func (f *Fetcher) Fetch(ctx context.Context) (string, error) {
	url := strings.TrimSpace(f.config.URL)
	if url == "" {
		return "", &Error{Err: errors.New("empty url")}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", &Error{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &Error{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("http %d", resp.StatusCode)}
	}

	// Read one byte past the cap to tell "exactly MaxBytes" from "more".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBytes+1))
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.config.MaxBytes {
		return "", &Error{URL: url, Err: ErrTooLarge}
	}

	// Decode to UTF-8 using the Content-Type charset, a <meta> declaration
	// or a BOM, in that order.
	dec, err := charset.NewReader(bytes.NewReader(body), resp.Header.Get("Content-Type"))
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("charset: %w", err)}
	}
	text, err := io.ReadAll(dec)
	if err != nil {
		return "", &Error{URL: url, Err: fmt.Errorf("decode body: %w", err)}
	}
	return string(text), nil
}
