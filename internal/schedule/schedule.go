// Package schedule parses the trigger spec used by watch mode.
//
// Supported forms:
//   - Cron (crontab.guru-style): "*/10 * * * *", "@hourly", "@every 10m"
//   - Interval duration: "10m", "1h30m"
//   - Interval HH:MM: "00:10" (10 minutes), "02:30" (2 hours 30 minutes)
//
// Optional prefixes:
//   - "cron:" forces cron parsing
//   - "interval:" or "every:" forces interval parsing
package schedule

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Kind describes the normalized kind of a schedule string.
type Kind int

const (
	KindCron Kind = iota
	KindInterval
)

// Spec is a parsed schedule string.
type Spec struct {
	Kind   Kind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

// MinInterval keeps watch mode from hammering the listing site.
const MinInterval = time.Minute

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

// Parse parses a schedule string into either a validated cron expression or
// an interval of at least MinInterval.
func Parse(raw string) (Spec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Spec{}, fmt.Errorf("schedule required")
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]))
	case strings.HasPrefix(low, "interval:"):
		return intervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return intervalSpec(s[len("every:"):])
	}

	// any whitespace or leading '@' => cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	if reHHMM.MatchString(s) {
		return intervalSpec(s)
	}
	if _, err := time.ParseDuration(s); err == nil {
		return intervalSpec(s)
	}

	return Spec{}, fmt.Errorf(
		"invalid schedule %q (use cron like '*/10 * * * *', HH:MM like '00:10', or duration like '10m')",
		raw,
	)
}

// Schedule returns the robfig/cron schedule for the spec. Cron specs are
// evaluated in loc (UTC when nil).
func (s Spec) Schedule(loc *time.Location) (cron.Schedule, error) {
	switch s.Kind {
	case KindInterval:
		return cron.Every(s.Every), nil
	default:
		if loc == nil {
			loc = time.UTC
		}
		expr := s.Cron
		if !strings.HasPrefix(expr, "CRON_TZ=") && !strings.HasPrefix(expr, "TZ=") {
			expr = "CRON_TZ=" + loc.String() + " " + expr
		}
		return parser.Parse(expr)
	}
}

func (s Spec) String() string {
	if s.Kind == KindInterval {
		return "every " + s.Every.String()
	}
	return "cron " + s.Cron
}

func parseCron(expr string) (Spec, error) {
	if expr == "" {
		return Spec{}, fmt.Errorf("cron schedule required after 'cron:'")
	}
	if _, err := parser.Parse(expr); err != nil {
		return Spec{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Spec{Kind: KindCron, Cron: expr, Source: "cron"}, nil
}

func intervalSpec(v string) (Spec, error) {
	d, src, err := parseInterval(v)
	if err != nil {
		return Spec{}, err
	}
	if d < MinInterval {
		return Spec{}, fmt.Errorf("interval %s is below the %s minimum", d, MinInterval)
	}
	return Spec{Kind: KindInterval, Every: d, Source: src}, nil
}

func parseInterval(v string) (time.Duration, string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, "", fmt.Errorf("interval required")
	}
	if reHHMM.MatchString(v) {
		d, err := parseHHMMDuration(v)
		return d, "hhmm", err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, "", fmt.Errorf("invalid interval %q (use HH:MM or Go duration like '10m'/'1h30m')", v)
	}
	if d <= 0 {
		return 0, "", fmt.Errorf("interval must be > 0")
	}
	return d, "duration", nil
}

func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("invalid HH:MM %q", v)
	}
	// hours up to 999, minutes 0..59
	var hh int
	for i := 0; i < len(m[1]); i++ {
		hh = hh*10 + int(m[1][i]-'0')
	}
	mm := int(m[2][0]-'0')*10 + int(m[2][1]-'0')
	if mm > 59 {
		return 0, fmt.Errorf("invalid minutes in %q", v)
	}
	d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	if d <= 0 {
		return 0, fmt.Errorf("interval must be > 0")
	}
	return d, nil
}
