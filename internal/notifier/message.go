package notifier

import (
	"net/url"
	"strings"
	"time"

	"albowatch/internal/bulletin"
	"albowatch/pkg/tgui"
)

const maxFieldRunes = 1200

// FormatRecord renders the alert for a new interesting record. All record
// text is escaped; the link is resolved against base when relative.
func FormatRecord(r bulletin.Record, base string) tgui.Message {
	return tgui.New().
		Title("🚨", "NUOVO BANDO RILEVATO!").
		Blank().
		Field("🏢", "Da", tgui.TruncRunes(r.Requester, maxFieldRunes)).
		Field("📄", "Oggetto", tgui.TruncRunes(r.Subject, maxFieldRunes)).
		Blank().
		Link("🔗", "Link al bando", ResolveLink(base, r.Link)).
		Build()
}

// FormatHeartbeat renders the daily liveness message.
func FormatHeartbeat(now time.Time) tgui.Message {
	return tgui.New().
		Title("💓", "HEARTBEAT GIORNALIERO").
		Line("Il sistema è attivo e funzionante.").
		Field("", "Orario server", now.Format("15:04")).
		Build()
}

// ResolveLink makes href absolute using base. Absolute hrefs and hrefs that
// cannot be parsed are returned unchanged; an empty href stays empty.
func ResolveLink(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil || ref.IsAbs() {
		return href
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || !b.IsAbs() {
		return href
	}
	return b.ResolveReference(ref).String()
}
