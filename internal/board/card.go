package board

import (
	"fmt"

	"tenderwatch/sync-service/internal/model"
	"tenderwatch/sync-service/internal/tender"
)

const (
	untitled   = "Bez tytułu"
	noDeadline = "brak danych"
)

// CardTitle renders "<number> — <title>", falling back to a placeholder title.
func CardTitle(t model.Tender) string {
	title := t.Title
	if title == "" {
		title = untitled
	}
	return fmt.Sprintf("%s — %s", t.Number, title)
}

// CardDescription renders the card body: branch, normalized deadline and link.
func CardDescription(t model.Tender) string {
	deadline := tender.NormalizeDeadline(t.Deadline)
	if deadline == "" {
		deadline = noDeadline
	}
	return fmt.Sprintf("Oddział: %s\nTermin składania: %s\n\nLink: %s", t.Region, deadline, t.URL)
}
