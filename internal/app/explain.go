package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"albowatch/internal/bulletin"
	logx "albowatch/pkg/logx"
)

// ErrNotListed is returned by Explain when the id is not on the fetched page.
var ErrNotListed = errors.New("record not on the first page of the listing")

// Explanation is the classification trace for one record.
type Explanation struct {
	Record  bulletin.Record
	Verdict bulletin.Verdict
	// Seen reports whether the id is already in history, i.e. a normal run
	// would not consider it new.
	Seen bool
}

// Explain fetches the listing, finds the record with the given id and
// reports how the current filter judges it. Nothing is sent or committed.
func (a *App) Explain(ctx context.Context, id string, w io.Writer) (Explanation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Explanation{}, errors.New("explain: empty record id")
	}
	doc, err := a.fetcher.Fetch(ctx)
	if err != nil {
		return Explanation{}, fmt.Errorf("fetch: %w", err)
	}
	records, err := a.extractor.Extract(doc)
	if err != nil {
		a.log.Warn("listing not usable", logx.String("selector", a.extractor.Selector()), logx.Err(err))
	}

	var (
		rec   bulletin.Record
		found bool
	)
	for _, r := range records {
		if r.ID == id {
			rec, found = r, true
			break
		}
	}
	if !found {
		fmt.Fprintf(w, "record %s: not on the first page (%d records listed under %q)\n", id, len(records), a.extractor.Selector())
		return Explanation{}, ErrNotListed
	}

	ex := Explanation{Record: rec, Verdict: a.filter.Explain(rec)}
	if seen, err := a.store.Load(ctx); err != nil {
		a.log.Warn("history unreadable", logx.Err(err))
	} else {
		ex.Seen = seen.Has(id)
	}
	writeExplanation(w, ex)
	return ex, nil
}

func writeExplanation(w io.Writer, ex Explanation) {
	r, v := ex.Record, ex.Verdict
	fmt.Fprintf(w, "record %s\n", r.ID)
	fmt.Fprintf(w, "  registered: %s\n", r.RegisteredAt)
	fmt.Fprintf(w, "  subject:    %q\n", r.Subject)
	fmt.Fprintf(w, "  requester:  %q\n", r.Requester)
	if r.Link != "" {
		fmt.Fprintf(w, "  link:       %s\n", r.Link)
	}

	fmt.Fprintf(w, "keywords:   %s", passFail(v.KeywordMatch))
	if v.KeywordMatch {
		fmt.Fprintf(w, " (matched %q)", v.Keyword)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "department: %s", passFail(v.DepartmentMatch))
	switch {
	case v.DepartmentOpen:
		fmt.Fprint(w, " (no departments configured)")
	case v.DepartmentMatch:
		fmt.Fprintf(w, " (matched %q)", v.Department)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "verdict:    %s\n", v.Reason())
	fmt.Fprintf(w, "in history: %t\n", ex.Seen)
}

func passFail(ok bool) string {
	if ok {
		return "pass"
	}
	return "fail"
}
