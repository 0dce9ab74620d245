// Package bulletin turns the published listing into records and decides
// which of them are worth a notification.
package bulletin

// Record is one row of the listing.
//
// Records are built fresh on every extraction and never mutated; only ID
// outlives a run (it is the diff key persisted in history).
type Record struct {
	// ID is the listing's own row number, unique within one fetch.
	ID string
	// RegisteredAt is the display date exactly as published; it is not parsed.
	RegisteredAt string
	Subject      string
	Requester    string
	// Link is the subject anchor's href verbatim (absolute or relative), or "".
	Link string
}

// IDs returns the record ids in listing order.
func IDs(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}
