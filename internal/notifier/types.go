package notifier

import (
	"errors"
	"time"

	"albowatch/internal/transport"
)

var ErrDisabled = errors.New("notifier disabled: no credential or recipient configured")

// Config controls dispatch.
type Config struct {
	Target      transport.ChatTarget
	ListingURL  string // base for relative record links
	SendTimeout time.Duration
	RatePerSec  int
	// RetryMax is the number of extra attempts after the first failure.
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
}

// SendError is a failed delivery of one record.
type SendError struct {
	RecordID string
	Attempts int
	Err      error
}

func (e *SendError) Error() string {
	if e.RecordID == "" {
		return "notify: send failed: " + e.Err.Error()
	}
	return "notify: record " + e.RecordID + ": send failed: " + e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }
