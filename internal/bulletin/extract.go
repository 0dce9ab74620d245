package bulletin

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultTableSelector anchors the listing table on the albo page.
const DefaultTableSelector = "table.table_albo"

// minCells is the number of cells a row needs: id, date, subject, requester.
const minCells = 4

// ParseWarning reports a document the extractor could not make sense of.
// It is never fatal: the extraction is simply empty.
type ParseWarning struct {
	Reason string
	Err    error
}

func (w *ParseWarning) Error() string {
	if w.Err != nil {
		return "bulletin: " + w.Reason + ": " + w.Err.Error()
	}
	return "bulletin: " + w.Reason
}

func (w *ParseWarning) Unwrap() error { return w.Err }

// Extractor parses the listing page. All knowledge of the page markup lives
// here so a redesign of the site touches nothing else.
type Extractor struct {
	selector string
}

// NewExtractor returns an extractor anchored on selector
// (DefaultTableSelector when blank).
func NewExtractor(selector string) *Extractor {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		selector = DefaultTableSelector
	}
	return &Extractor{selector: selector}
}

// Selector returns the table anchor in use.
func (e *Extractor) Selector() string { return e.selector }

// Extract returns the listing rows in document order.
//
// It never fails hard: when the table cannot be located the result is empty
// and the returned error is a *ParseWarning for the caller to log. Rows with
// fewer than four cells are skipped silently.
func (e *Extractor) Extract(document string) ([]Record, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, &ParseWarning{Reason: "parse html", Err: err}
	}

	table := doc.Find(e.selector).First()
	if table.Length() == 0 {
		return nil, &ParseWarning{Reason: fmt.Sprintf("listing table %q not found", e.selector)}
	}
	tbody := table.ChildrenFiltered("tbody").First()
	if tbody.Length() == 0 {
		return nil, &ParseWarning{Reason: fmt.Sprintf("listing table %q has no tbody", e.selector)}
	}

	var out []Record
	tbody.ChildrenFiltered("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("td")
		if cells.Length() < minCells {
			return
		}

		subjectCell := cells.Eq(2)
		subject := cleanText(subjectCell)
		link := ""
		if a := subjectCell.Find("a").First(); a.Length() > 0 {
			subject = cleanText(a)
			link, _ = a.Attr("href")
		}

		out = append(out, Record{
			ID:           cleanText(cells.Eq(0)),
			RegisteredAt: cleanText(cells.Eq(1)),
			Subject:      subject,
			Requester:    cleanText(cells.Eq(3)),
			Link:         link,
		})
	})
	return out, nil
}

func cleanText(s *goquery.Selection) string {
	return strings.TrimSpace(s.Text())
}
